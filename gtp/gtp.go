// Package gtp speaks the Go Text Protocol over a line stream. The
// handler owns the board state; move generation is delegated to a
// searcher.
package gtp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"tengen/game"
	"tengen/nn"
	"tengen/searcher"

	"github.com/rs/zerolog/log"
)

// Searcher generates moves for the handler. *searcher.MCTS satisfies
// it.
type Searcher interface {
	Search(pos *game.Position) (searcher.Result, error)
	Advance(mv game.Vertex, pos *game.Position)
	Reset()
}

// Handler holds the protocol state: no board at all until the first
// boardsize command, then a current position plus the undo stack.
type Handler struct {
	name    string
	version string
	search  Searcher

	komi    float64
	pos     *game.Position
	history []*game.Position
}

func New(name, version string, search Searcher) *Handler {
	return &Handler{
		name:    name,
		version: version,
		search:  search,
		komi:    7.5,
	}
}

type command struct {
	run        func(h *Handler, args []string) (string, error)
	needsBoard bool
}

var commands map[string]command

// knownCommand and listCommands read the command table, so it cannot
// be a package-level literal without an initialization cycle.
func init() {
	commands = map[string]command{
		"protocol_version": {run: (*Handler).protocolVersion},
		"name":          {run: (*Handler).cmdName},
		"version":       {run: (*Handler).cmdVersion},
		"known_command": {run: (*Handler).knownCommand},
		"list_commands": {run: (*Handler).listCommands},
		"boardsize":     {run: (*Handler).boardsize},
		"komi":          {run: (*Handler).cmdKomi},
		"clear_board":   {run: (*Handler).clearBoard, needsBoard: true},
		"play":          {run: (*Handler).play, needsBoard: true},
		"set_position":  {run: (*Handler).setPosition, needsBoard: true},
		"genmove":       {run: (*Handler).genmove, needsBoard: true},
		"reg_genmove":   {run: (*Handler).regGenmove, needsBoard: true},
		"undo":          {run: (*Handler).undo, needsBoard: true},
		"final_score":   {run: (*Handler).finalScore, needsBoard: true},
		"showboard":     {run: (*Handler).showboard, needsBoard: true},
	}
}

// Run reads commands until EOF or quit, writing one response block per
// command. It returns a non-nil error only for fatal conditions such
// as a failed evaluator; protocol-level problems become "?" responses
// and the loop keeps going.
func (h *Handler) Run(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		id, name, args, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		log.Debug().Str("command", name).Strs("args", args).Msg("gtp command")

		if name == "quit" {
			respond(w, id, true, "")
			return nil
		}

		cmd, known := commands[name]
		if !known {
			respond(w, id, false, "unknown command")
			continue
		}
		if cmd.needsBoard && h.pos == nil {
			respond(w, id, false, "board not initialized")
			continue
		}

		reply, err := cmd.run(h, args)
		if err != nil {
			respond(w, id, false, err.Error())
			if errors.Is(err, nn.ErrEvaluatorFailed) {
				return err
			}
			continue
		}
		respond(w, id, true, reply)
	}
	return scanner.Err()
}

// parseLine strips comments and control characters and splits off the
// optional numeric command id.
func parseLine(line string) (id, name string, args []string, ok bool) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.Map(func(r rune) rune {
		if r < ' ' {
			return ' '
		}
		return r
	}, line)

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", nil, false
	}
	if _, err := strconv.Atoi(fields[0]); err == nil && len(fields) > 1 {
		id, fields = fields[0], fields[1:]
	}
	return id, strings.ToLower(fields[0]), fields[1:], true
}

func respond(w io.Writer, id string, success bool, text string) {
	marker := "="
	if !success {
		marker = "?"
	}
	if text == "" {
		fmt.Fprintf(w, "%s%s\n\n", marker, id)
		return
	}
	fmt.Fprintf(w, "%s%s %s\n\n", marker, id, text)
}

func (h *Handler) protocolVersion([]string) (string, error) { return "2", nil }
func (h *Handler) cmdName([]string) (string, error)         { return h.name, nil }
func (h *Handler) cmdVersion([]string) (string, error)      { return h.version, nil }

func (h *Handler) knownCommand(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("expected a command name")
	}
	if args[0] == "quit" {
		return "true", nil
	}
	_, ok := commands[strings.ToLower(args[0])]
	return strconv.FormatBool(ok), nil
}

func (h *Handler) listCommands([]string) (string, error) {
	names := make([]string, 0, len(commands)+1)
	for name := range commands {
		names = append(names, name)
	}
	names = append(names, "quit")
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func (h *Handler) boardsize(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("expected a board size")
	}
	size, err := strconv.Atoi(args[0])
	if err != nil || size < game.MinSize || size > game.MaxSize {
		return "", errors.New("unacceptable size")
	}
	h.reset(size)
	return "", nil
}

func (h *Handler) cmdKomi(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("expected a komi value")
	}
	komi, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return "", errors.New("komi is not a number")
	}
	h.komi = komi
	if h.pos != nil {
		h.pos = h.pos.WithKomi(komi)
		h.search.Reset()
	}
	return "", nil
}

func (h *Handler) clearBoard([]string) (string, error) {
	h.reset(h.pos.Size())
	return "", nil
}

func (h *Handler) reset(size int) {
	h.pos = game.NewPosition(size, h.komi)
	h.history = nil
	h.search.Reset()
}

func (h *Handler) play(args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("expected a color and a vertex")
	}
	color, err := parseColor(args[0])
	if err != nil {
		return "", err
	}
	mv, err := game.ParseVertex(args[1], h.pos.Size())
	if err != nil {
		return "", err
	}

	next, err := h.pos.WithToMove(color).Apply(mv)
	if err != nil {
		return "", errors.New("illegal move")
	}
	h.push(next)
	h.search.Advance(mv, next)
	return "", nil
}

// setPosition replaces the whole board with a fresh one and the given
// color/vertex pairs, in order. The board is untouched when any move
// in the list is rejected.
func (h *Handler) setPosition(args []string) (string, error) {
	if len(args)%2 != 0 {
		return "", errors.New("expected color and vertex pairs")
	}

	pos := game.NewPosition(h.pos.Size(), h.komi)
	for i := 0; i < len(args); i += 2 {
		color, err := parseColor(args[i])
		if err != nil {
			return "", err
		}
		mv, err := game.ParseVertex(args[i+1], pos.Size())
		if err != nil {
			return "", err
		}
		pos, err = pos.WithToMove(color).Apply(mv)
		if err != nil {
			return "", fmt.Errorf("illegal move %s %s", args[i], args[i+1])
		}
	}

	h.pos = pos
	h.history = nil
	h.search.Reset()
	return "", nil
}

func (h *Handler) genmove(args []string) (string, error) {
	result, pos, err := h.generate(args)
	if err != nil {
		return "", err
	}
	if result.Resign {
		return "resign", nil
	}
	if pos.Finished() {
		// Two consecutive passes ended the game; nothing to play.
		return game.Pass.Format(pos.Size()), nil
	}

	next, err := pos.Apply(result.Move)
	if err != nil {
		return "", fmt.Errorf("searcher chose an illegal move: %w", err)
	}
	h.push(next)
	h.search.Advance(result.Move, next)
	return result.Move.Format(pos.Size()), nil
}

// regGenmove searches like genmove but leaves the board untouched.
func (h *Handler) regGenmove(args []string) (string, error) {
	result, pos, err := h.generate(args)
	if err != nil {
		return "", err
	}
	if result.Resign {
		return "resign", nil
	}
	return result.Move.Format(pos.Size()), nil
}

func (h *Handler) generate(args []string) (searcher.Result, *game.Position, error) {
	if len(args) != 1 {
		return searcher.Result{}, nil, errors.New("expected a color")
	}
	color, err := parseColor(args[0])
	if err != nil {
		return searcher.Result{}, nil, err
	}

	pos := h.pos.WithToMove(color)
	if pos.Finished() {
		return searcher.Result{Move: game.Pass}, pos, nil
	}
	result, err := h.search.Search(pos)
	if err != nil {
		return searcher.Result{}, nil, err
	}
	return result, pos, nil
}

func (h *Handler) undo([]string) (string, error) {
	if len(h.history) == 0 {
		return "", errors.New("cannot undo")
	}
	// Saved positions carry the komi of their day; the handler's
	// current komi wins.
	h.pos = h.history[len(h.history)-1].WithKomi(h.komi)
	h.history = h.history[:len(h.history)-1]
	h.search.Reset()
	return "", nil
}

func (h *Handler) finalScore([]string) (string, error) {
	return h.pos.Result(), nil
}

func (h *Handler) showboard([]string) (string, error) {
	return "\n" + h.pos.String(), nil
}

func (h *Handler) push(next *game.Position) {
	h.history = append(h.history, h.pos)
	h.pos = next
}

func parseColor(s string) (game.Color, error) {
	switch strings.ToLower(s) {
	case "b", "black":
		return game.Black, nil
	case "w", "white":
		return game.White, nil
	}
	return game.Empty, fmt.Errorf("invalid color %q", s)
}
