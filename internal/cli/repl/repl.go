package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"mathtutor/internal/cli/command"
	httpclient "mathtutor/internal/cli/http"
	"mathtutor/internal/cli/state"

	"github.com/google/shlex"
)

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	tokenState *state.TokenState
	statePath  string
	prettyJSON bool

	input  *bufio.Reader
	output *bufio.Writer
	now    func() time.Time
}

func New(client *httpclient.Client, commands map[string]command.Command, tokenState *state.TokenState, statePath string, prettyJSON bool, in io.Reader, out io.Writer) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		tokenState: tokenState,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		input:      bufio.NewReader(in),
		output:     bufio.NewWriter(out),
		now:        time.Now,
	}
}

// Run reads commands until exit or end of input.
func (s *Session) Run(ctx context.Context) {
	for {
		_, _ = s.output.WriteString("mathtutor> ")
		_ = s.output.Flush()
		line, err := s.input.ReadString('\n')
		if err != nil && line == "" {
			if err != io.EOF {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return
		}
		if s.handleSystemCommand(line) {
			continue
		}
		if err := s.Exec(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) bool {
	switch line {
	case "help":
		s.printHelp()
		return true
	case "logout":
		*s.tokenState = state.TokenState{}
		if err := state.Clear(s.statePath); err != nil {
			s.printLine("clear token failed: %v", err)
			return true
		}
		s.printLine("logged out")
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|token|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:5000")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 2m")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		if len(parts) < 2 {
			s.printLine("usage: set token <access_token>")
			return
		}
		s.tokenState.AccessToken = parts[1]
		s.tokenState.ExpiresAt = time.Time{}
		if err := state.Save(s.statePath, *s.tokenState); err != nil {
			s.printLine("save token failed: %v", err)
			return
		}
		s.printLine("token updated")
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "token":
		if s.tokenState.AccessToken == "" {
			s.printLine("token: <empty>")
			return
		}
		token := s.tokenState.AccessToken
		if len(token) > 12 {
			token = token[:6] + "..." + token[len(token)-4:]
		}
		s.printLine("token: %s", token)
		if s.tokenState.Username != "" {
			s.printLine("user: %s (%d)", s.tokenState.Username, s.tokenState.UserID)
		}
		if s.tokenState.Expired(s.now()) {
			s.printLine("token expired at %s", s.tokenState.ExpiresAt.Format(time.RFC3339))
		}
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("tokenStatePath: %s", s.statePath)
	case "commands":
		keys := make([]string, 0, len(s.commands))
		for key := range s.commands {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			s.printLine("  %s", key)
		}
	default:
		s.printLine("usage: show token|config|commands")
	}
}

// Exec runs one "<service> <action> key=value ..." line against the API.
func (s *Session) Exec(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params, err := command.ParseAssignments(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)

	s.applyParamShortcuts(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	if cmd.RequiresAuth && s.tokenState.AccessToken == "" {
		s.printLine("warning: %s needs an admin token, run auth login first", cmd.Key())
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.updateTokenFromResponse(cmd, resp)
	return nil
}

// applyParamShortcuts fills the submitter from the logged-in session.
func (s *Session) applyParamShortcuts(cmd command.Command, params command.Params) {
	if cmd.Service == "submit" && cmd.Action == "create" {
		if params.Get("user_id") == "" && s.tokenState.UserID > 0 {
			params.Set("user_id", strconv.FormatInt(s.tokenState.UserID, 10))
		}
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(prompt string) (string, error) {
	s.printLine("%s:", prompt)
	line, err := s.input.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

type errorEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id"`
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration.Round(time.Millisecond))
	if len(resp.Body) == 0 {
		return
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var envelope errorEnvelope
		if err := json.Unmarshal(resp.Body, &envelope); err == nil && envelope.Message != "" {
			if envelope.TraceID != "" {
				s.printLine("error %d: %s (trace %s)", envelope.Code, envelope.Message, envelope.TraceID)
			} else {
				s.printLine("error %d: %s", envelope.Code, envelope.Message)
			}
			return
		}
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) updateTokenFromResponse(cmd command.Command, resp httpclient.ResponseInfo) {
	if cmd.Service != "auth" || cmd.Action != "login" || resp.StatusCode != http.StatusOK {
		return
	}
	var login struct {
		UserID      int64      `json:"userid"`
		Username    string     `json:"username"`
		AccessToken string     `json:"access_token"`
		ExpiresAt   *time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(resp.Body, &login); err != nil {
		return
	}
	next := state.TokenState{
		AccessToken: login.AccessToken,
		UserID:      login.UserID,
		Username:    login.Username,
	}
	if login.ExpiresAt != nil {
		next.ExpiresAt = *login.ExpiresAt
	}
	*s.tokenState = next
	if err := state.Save(s.statePath, next); err != nil {
		s.printLine("save token failed: %v", err)
	}
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | logout | set base|timeout|token | show token|config|commands")
	s.printLine("examples:")
	s.printLine("  auth login username=demo password=secret")
	s.printLine("  problem questions level=3")
	s.printLine("  submit create problem_id=question-7 file=./work.png")
	s.printLine("  user rating-history id=2 limit=10")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.output, format+"\n", args...)
	_ = s.output.Flush()
}
