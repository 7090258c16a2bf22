package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jlpozo/DesafioFinalBack/internal/client"
)

type options struct {
	baseURL       string
	adminEmail    string
	adminPassword string
}

type outcome struct {
	name    string
	err     error
	elapsed time.Duration
}

type model struct {
	opts      options
	scenarios []client.Scenario
	selected  int
	status    string
	results   map[string]outcome
	busy      bool
}

func initialModel(opts options) model {
	return model{
		opts:      opts,
		scenarios: client.Scenarios(),
		status:    "Ready",
		results:   map[string]outcome{},
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selected > 0 {
				m.selected--
			}
		case "down":
			if m.selected < len(m.scenarios)-1 {
				m.selected++
			}
		case "enter", "a":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Running..."
			picked := m.scenarios
			if msg.String() == "enter" {
				picked = m.scenarios[m.selected : m.selected+1]
			}
			return m, runCmd(m.opts, picked)
		}
	case []outcome:
		m.busy = false
		failed := 0
		for _, o := range msg {
			m.results[o.name] = o
			if o.err != nil {
				failed++
			}
		}
		m.status = fmt.Sprintf("Finished: %d run, %d failed", len(msg), failed)
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "storefront scenarios")
	fmt.Fprintf(b, "API: %s\n\n", m.opts.baseURL)
	for i, sc := range m.scenarios {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %s  %-52s %s\n", marker, sc.Name, sc.Description, resultLabel(m.results, sc.Name))
	}
	fmt.Fprintf(b, "\nStatus: %s\n", m.status)
	for _, sc := range m.scenarios {
		if o, ok := m.results[sc.Name]; ok && o.err != nil {
			fmt.Fprintf(b, "  %s: %v\n", sc.Name, o.err)
		}
	}
	fmt.Fprintln(b, "\nControls: up/down select, enter run selected, a run all, q quit")
	return b.String()
}

func resultLabel(results map[string]outcome, name string) string {
	o, ok := results[name]
	switch {
	case !ok:
		return ""
	case o.err != nil:
		return "FAIL"
	default:
		return fmt.Sprintf("ok (%s)", o.elapsed.Round(time.Millisecond))
	}
}

func runCmd(opts options, picked []client.Scenario) tea.Cmd {
	return func() tea.Msg {
		return run(opts, picked)
	}
}

func run(opts options, picked []client.Scenario) []outcome {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, err := client.Setup(ctx, client.New(opts.baseURL, nil), opts.adminEmail, opts.adminPassword)
	if err != nil {
		out := make([]outcome, 0, len(picked))
		for _, sc := range picked {
			out = append(out, outcome{name: sc.Name, err: err})
		}
		return out
	}
	out := make([]outcome, 0, len(picked))
	for _, sc := range picked {
		start := time.Now()
		err := sc.Run(ctx, sess)
		out = append(out, outcome{name: sc.Name, err: err, elapsed: time.Since(start)})
	}
	return out
}

func main() {
	opts := options{}
	flag.StringVar(&opts.baseURL, "base-url", getenv("STOREFRONT_BASE_URL", "http://localhost:8080"), "storefront API base URL")
	flag.StringVar(&opts.adminEmail, "admin-email", getenv("ADMIN_EMAIL", "admin@example.com"), "administrator email (must match the API's ADMIN_EMAIL)")
	flag.StringVar(&opts.adminPassword, "admin-password", getenv("ADMIN_PASSWORD", "admin-password"), "administrator password")
	runFlag := flag.String("run", "", "run scenarios without the TUI: all or a comma-separated list such as A,C")
	flag.Parse()

	if *runFlag != "" {
		picked, err := pick(*runFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		failed := false
		for _, o := range run(opts, picked) {
			if o.err != nil {
				failed = true
				fmt.Printf("%s FAIL %v\n", o.name, o.err)
				continue
			}
			fmt.Printf("%s ok   %s\n", o.name, o.elapsed.Round(time.Millisecond))
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(initialModel(opts))
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func pick(list string) ([]client.Scenario, error) {
	all := client.Scenarios()
	if strings.EqualFold(list, "all") {
		return all, nil
	}
	var out []client.Scenario
	for _, name := range strings.Split(list, ",") {
		name = strings.ToUpper(strings.TrimSpace(name))
		found := false
		for _, sc := range all {
			if sc.Name == name {
				out = append(out, sc)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
	}
	return out, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
