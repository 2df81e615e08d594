package shell

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cjoudrey/gluahttp"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
)

func getShell(L *lua.LState) *ShellController {
	shell := L.GetGlobal("connect4_shell")
	ud, ok := shell.(*lua.LUserData)
	if !ok {
		panic("luserdata not right type")
	}
	sc, ok := ud.Value.(*ShellController)
	if !ok {
		panic("shellcontroller not right type")
	}
	return sc
}

// pushResponse pushes the message of a command, or an error string.
func pushResponse(L *lua.LState, name string, r *Response, err error) int {
	if err != nil {
		log.Err(err).Str("command", name).Msg("error-executing-script-command")
		L.Push(lua.LString("ERROR: " + err.Error()))
		return 1
	}
	L.Push(lua.LString(r.message))
	// return number of results pushed to stack.
	return 1
}

func Load(L *lua.LState) int {
	lv := L.ToString(1)
	sc := getShell(L)
	r, err := sc.load(&shellcmd{cmd: "load", args: []string{lv}})
	return pushResponse(L, "load", r, err)
}

func Play(L *lua.LState) int {
	col := L.ToInt(1)
	sc := getShell(L)
	r, err := sc.play(&shellcmd{cmd: "play", args: []string{strconv.Itoa(col)}})
	return pushResponse(L, "play", r, err)
}

func Solve(L *lua.LState) int {
	sc := getShell(L)
	r, err := sc.solve()
	return pushResponse(L, "solve", r, err)
}

func Show(L *lua.LState) int {
	sc := getShell(L)
	r, err := sc.show()
	return pushResponse(L, "show", r, err)
}

// Score pushes the score of the current position, or nil if the search
// failed.
func Score(L *lua.LState) int {
	sc := getShell(L)
	s := sc.pool.Solver()
	ctx, done := sc.startSearch()
	defer done()
	score, err := s.SolveContext(ctx, sc.pos, sc.weak)
	if err != nil {
		log.Err(err).Msg("error-executing-score")
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(score))
	return 1
}

// Analyze pushes a table of the seven column scores.
func Analyze(L *lua.LState) int {
	sc := getShell(L)
	scores, err := sc.analyzeScores()
	if err != nil {
		log.Err(err).Msg("error-executing-analyze")
		L.Push(lua.LNil)
		return 1
	}
	tbl := L.NewTable()
	for _, score := range scores {
		tbl.Append(lua.LNumber(score))
	}
	L.Push(tbl)
	return 1
}

func (sc *ShellController) script(cmd *shellcmd) (*Response, error) {
	if cmd.args == nil {
		return nil, errors.New("need arguments for script")
	}

	filepath := cmd.args[0]

	L := lua.NewState()
	defer L.Close()
	L.PreloadModule("http", gluahttp.NewHttpModule(&http.Client{}).Loader)
	luajson.Preload(L)

	lsc := L.NewUserData()
	lsc.Value = sc

	L.SetGlobal("connect4_shell", lsc)
	L.SetGlobal("connect4_load", L.NewFunction(Load))
	L.SetGlobal("connect4_play", L.NewFunction(Play))
	L.SetGlobal("connect4_solve", L.NewFunction(Solve))
	L.SetGlobal("connect4_show", L.NewFunction(Show))
	L.SetGlobal("connect4_score", L.NewFunction(Score))
	L.SetGlobal("connect4_analyze", L.NewFunction(Analyze))

	if err := L.DoFile(filepath); err != nil {
		log.Err(err).Msg("there was a error")
		return nil, err
	}
	return Msg("ran " + filepath), nil
}
