// Package cli provides the interactive command-line interface for the
// savestate store: a readline-style REPL with history, backed by
// pkg/savestate.Store.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/go-savestate/savestate/pkg/savestate"
)

const usage = `Commands:
  PUT <key> <value>     store key/value
  GET <key>             fetch a value
  DELETE <key>          remove a key
  CONTAINS <key>        report whether a key is live
  LEN                   number of live keys
  KEYS                  list all live keys, insertion order
  POPITEM               remove and print the most recent key/value
  CLEAR                 delete every key
  COMPACT               rewrite the file to one record per key
  COPY <path>           write a dense copy to path
  SYNC                  force a flush+fsync
  EXIT / QUIT           leave the REPL
`

// Handler drives the REPL loop over a single open Store.
type Handler struct {
	store *savestate.Store
	log   *zap.SugaredLogger
	line  *liner.State
}

// NewHandler builds a Handler over an already-open store.
func NewHandler(store *savestate.Store, log *zap.SugaredLogger) *Handler {
	return &Handler{store: store, log: log}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".savestate_history")
}

// Run starts the interactive loop, processing input until EXIT, QUIT,
// Ctrl-D, or Ctrl-C.
func (h *Handler) Run() error {
	h.line = liner.NewLiner()
	defer h.line.Close()

	h.line.SetCtrlCAborts(true)
	h.line.SetCompleter(h.completer)

	if f, err := os.Open(historyPath()); err == nil {
		h.line.ReadHistory(f)
		f.Close()
	}
	defer h.saveHistory()

	fmt.Println("savestate interactive shell")
	fmt.Print(usage)

	for {
		input, err := h.line.Prompt("savestate> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nbye")
				return nil
			}
			return err
		}

		line := strings.TrimSpace(input)
		if line == "" {
			continue
		}
		h.line.AppendHistory(line)

		parts := strings.Fields(line)
		command := strings.ToUpper(parts[0])

		if command == "EXIT" || command == "QUIT" {
			fmt.Println("bye")
			return nil
		}
		h.dispatch(command, parts)
	}
}

func (h *Handler) saveHistory() {
	path := historyPath()
	if path == "" {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	h.line.WriteHistory(f)
}

func (h *Handler) completer(line string) []string {
	commands := []string{"PUT", "GET", "DELETE", "CONTAINS", "LEN", "KEYS", "POPITEM", "CLEAR", "COMPACT", "COPY", "SYNC", "EXIT", "QUIT"}
	var out []string
	upper := strings.ToUpper(line)
	for _, c := range commands {
		if strings.HasPrefix(c, upper) {
			out = append(out, c)
		}
	}
	return out
}

func (h *Handler) dispatch(command string, parts []string) {
	switch command {
	case "PUT":
		h.cmdPut(parts)
	case "GET":
		h.cmdGet(parts)
	case "DELETE":
		h.cmdDelete(parts)
	case "CONTAINS":
		h.cmdContains(parts)
	case "LEN":
		h.cmdLen()
	case "KEYS":
		h.cmdKeys()
	case "POPITEM":
		h.cmdPopItem()
	case "CLEAR":
		h.cmdClear()
	case "COMPACT":
		h.cmdCompact()
	case "COPY":
		h.cmdCopy(parts)
	case "SYNC":
		h.cmdSync()
	default:
		fmt.Printf("unknown command: %s\n", command)
		fmt.Print(usage)
	}
}

func (h *Handler) cmdPut(parts []string) {
	if len(parts) < 3 {
		fmt.Println("usage: PUT <key> <value>")
		return
	}
	key := parts[1]
	value := strings.Join(parts[2:], " ")
	if err := h.store.Set([]byte(key), []byte(value)); err != nil {
		h.log.Errorw("put failed", "key", key, "error", err)
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (h *Handler) cmdGet(parts []string) {
	if len(parts) != 2 {
		fmt.Println("usage: GET <key>")
		return
	}
	value, err := h.store.Get([]byte(parts[1]))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(string(value))
}

func (h *Handler) cmdDelete(parts []string) {
	if len(parts) != 2 {
		fmt.Println("usage: DELETE <key>")
		return
	}
	if err := h.store.Delete([]byte(parts[1])); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (h *Handler) cmdContains(parts []string) {
	if len(parts) != 2 {
		fmt.Println("usage: CONTAINS <key>")
		return
	}
	fmt.Println(strconv.FormatBool(h.store.Contains([]byte(parts[1]))))
}

func (h *Handler) cmdLen() {
	fmt.Println(h.store.Len())
}

func (h *Handler) cmdKeys() {
	for k := range h.store.Keys() {
		fmt.Println(string(k))
	}
}

func (h *Handler) cmdPopItem() {
	key, value, err := h.store.PopItem()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("%s %s\n", key, value)
}

func (h *Handler) cmdClear() {
	if err := h.store.Clear(); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (h *Handler) cmdCompact() {
	if err := h.store.Compact(); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (h *Handler) cmdCopy(parts []string) {
	if len(parts) != 2 {
		fmt.Println("usage: COPY <path>")
		return
	}
	if err := h.store.Copy(parts[1]); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (h *Handler) cmdSync() {
	if err := h.store.Sync(); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}
