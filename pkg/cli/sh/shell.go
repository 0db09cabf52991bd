// Package sh provides an interactive shell to exercise the SPC decoder.
package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/spc.go/pkg/spc"
	"github.com/robotalks/spc.go/pkg/store/sqlite"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	DBPath      string

	Shell   *ishell.Shell
	Session *spc.Session

	store *sqlite.Store
}

const (
	shellKey = "$shell"
	prompt   = "spc> "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	dbPath     string
	strictBCD  bool

	// commands
	commands = []*ishell.Cmd{
		&ResetCmd,
		&BitCmd,
		&FrameCmd,
		&DecodeCmd,
		&StatusCmd,
		&StrictCmd,
		&EncodeCmd,
		&HistoryCmd,
		&StatsCmd,
		&ReplayCmd,
		&PortsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&dbPath, "db", dbPath, "Reading database for history and stats.")
	flag.BoolVar(&strictBCD, "strict", strictBCD, "Reject digit nibbles above 9.")
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		DBPath:      dbPath,

		Shell:   ishell.New(),
		Session: spc.NewSession(strictBCD),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Store opens the reading database on first use.
func (s *Shell) Store() (*sqlite.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	if s.DBPath == "" {
		return nil, fmt.Errorf("no reading database, use -db")
	}
	store, err := sqlite.Open(s.DBPath)
	if err != nil {
		return nil, err
	}
	s.store = store
	return store, nil
}

// Print prints v as JSON or using the text formatter.
func (s *Shell) Print(c *ishell.Context, v interface{}, text func() string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text())
}

// Close releases resources.
func (s *Shell) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Close()
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New().Run(flag.Args()...)
}
