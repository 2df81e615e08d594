package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"

	"github.com/domino14/connect4/config"
	"github.com/domino14/connect4/position"
	"github.com/domino14/connect4/solver"
)

var (
	errNoData            = errors.New("no data in this line")
	errWrongOptionSyntax = errors.New("wrong format; all options need arguments")
)

type Response struct {
	message string
}

func Msg(message string) *Response {
	return &Response{message: message}
}

type shellcmd struct {
	cmd     string
	args    []string
	options map[string]string
}

// ShellController runs an interactive game of Connect Four against the
// solver.
type ShellController struct {
	l      *readline.Instance
	out    io.Writer
	config *config.Config
	pool   *solver.Pool

	pos     *position.Position
	history []int
	auto    bool
	weak    bool

	searchMu     sync.Mutex
	searchCancel context.CancelFunc
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func showMessage(msg string, w io.Writer) {
	io.WriteString(w, msg)
	io.WriteString(w, "\n")
}

func newController(cfg *config.Config, pool *solver.Pool, out io.Writer) *ShellController {
	return &ShellController{
		out:    out,
		config: cfg,
		pool:   pool,
		pos:    position.New(),
		weak:   cfg.GetBool(config.ConfigWeak),
	}
}

func NewShellController(cfg *config.Config, pool *solver.Pool) (*ShellController, error) {
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[31mconnect4>\033[0m ",
		HistoryFile:     cfg.GetString(config.ConfigHistoryFile),
		EOFPrompt:       "exit",
		InterruptPrompt: "^C",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return nil, err
	}
	sc := newController(cfg, pool, l.Stderr())
	sc.l = l
	return sc, nil
}

func (sc *ShellController) showMessage(msg string) {
	showMessage(msg, sc.out)
}

func (sc *ShellController) showError(err error) {
	sc.showMessage("Error: " + err.Error())
}

// extractFields splits a line into a command, its positional arguments and
// its -option value pairs.
func extractFields(line string) (*shellcmd, error) {
	fields, err := shellquote.Split(line)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errNoData
	}
	cmd := fields[0]
	var args []string
	options := map[string]string{}
	for idx := 1; idx < len(fields); idx++ {
		if strings.HasPrefix(fields[idx], "-") {
			if idx == len(fields)-1 {
				return nil, errWrongOptionSyntax
			}
			options[fields[idx][1:]] = fields[idx+1]
			idx++
			continue
		}
		args = append(args, fields[idx])
	}
	return &shellcmd{cmd: cmd, args: args, options: options}, nil
}

// startSearch returns a context that CancelSearch cancels.
func (sc *ShellController) startSearch() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sc.searchMu.Lock()
	sc.searchCancel = cancel
	sc.searchMu.Unlock()
	return ctx, func() {
		sc.searchMu.Lock()
		sc.searchCancel = nil
		sc.searchMu.Unlock()
		cancel()
	}
}

// CancelSearch abandons the running search, if any, and reports whether
// there was one.
func (sc *ShellController) CancelSearch() bool {
	sc.searchMu.Lock()
	defer sc.searchMu.Unlock()
	if sc.searchCancel == nil {
		return false
	}
	log.Info().Msg("cancelling-search")
	sc.searchCancel()
	sc.searchCancel = nil
	return true
}

func (sc *ShellController) handle(line string) (*Response, error) {
	cmd, err := extractFields(line)
	if err != nil {
		return nil, err
	}
	if _, err := strconv.Atoi(cmd.cmd); err == nil {
		// a bare column number plays it.
		return sc.play(&shellcmd{cmd: "play", args: []string{cmd.cmd}})
	}
	switch cmd.cmd {
	case "new", "n":
		return sc.newGame()
	case "show", "s", "b":
		return sc.show()
	case "play", "p":
		return sc.play(cmd)
	case "solve", "S":
		return sc.solve()
	case "analyze", "a":
		return sc.analyze()
	case "score":
		return sc.score()
	case "undo", "u":
		return sc.undo()
	case "load":
		return sc.load(cmd)
	case "auto":
		return sc.toggle(cmd, &sc.auto)
	case "weak":
		return sc.toggle(cmd, &sc.weak)
	case "script":
		return sc.script(cmd)
	case "help", "h":
		return sc.help(cmd)
	default:
		msg := fmt.Sprintf("command %v not found", strconv.Quote(cmd.cmd))
		log.Info().Msg(msg)
		return nil, errors.New(msg)
	}
}

// Execute runs a single command line, as given on the command line.
func (sc *ShellController) Execute(line string) {
	resp, err := sc.handle(line)
	if err != nil {
		sc.showError(err)
	} else if resp != nil {
		sc.showMessage(resp.message)
	}
}

func (sc *ShellController) Loop(sig chan os.Signal) {
	defer sc.l.Close()

	sc.showMessage(sc.pos.String())
	for {
		line, err := sc.l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				sig <- syscall.SIGINT
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			sig <- syscall.SIGINT
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			sig <- syscall.SIGINT
			break
		}
		sc.Execute(line)
	}
	log.Debug().Msgf("Exiting readline loop...")
}
