// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive terminal frontend.
//
// It is a line-oriented REPL: plain text is submitted as a chat prompt
// and streamed back inline, slash commands manage conversations, models,
// providers, and credentials. Input history is persisted across sessions.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/yat/internal/chat"
	"github.com/jeranaias/yat/internal/config"
	"github.com/jeranaias/yat/internal/llm"
	"github.com/jeranaias/yat/internal/model"
	"github.com/jeranaias/yat/internal/plugin"
	"github.com/jeranaias/yat/internal/util"
)

// =============================================================================
// REPL
// =============================================================================

// Options carries the collaborators the REPL drives.
type Options struct {
	Pipeline  *chat.Pipeline
	Manager   *llm.Manager
	Config    *config.Config
	Providers *config.Store
	Plugins   *plugin.Registry
	Env       *config.EnvFile

	// ReloadProviders rebuilds the provider set after descriptors or
	// enablement changed. Wired by main.
	ReloadProviders func(ctx context.Context) error
}

// REPL is the interactive session.
type REPL struct {
	opts Options

	line        *liner.State
	historyFile string

	// lastList maps the numbers shown by /list to conversation ids.
	lastList []model.Conversation
	// choices maps the numbers shown by /models to selection keys.
	choices []llm.Choice

	// printed tracks how much of the streaming response is on screen.
	printed int
}

// New creates a REPL with input history support.
func New(opts Options) *REPL {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &REPL{
		opts:        opts,
		line:        line,
		historyFile: filepath.Join(opts.Config.DataDir(), "input_history"),
	}
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

// Sinks returns the pipeline callbacks that render streaming output.
// Pass these when constructing the pipeline.
func (r *REPL) Sinks() chat.Sinks {
	return chat.Sinks{
		OnChunk: func(conversationID, accumulated string) {
			delta := accumulated[r.printed:]
			r.printed = len(accumulated)
			fmt.Print(AssistantStyle.Render(delta))
		},
		OnTurnComplete: func(conversationID string, assistant model.Message) {
			fmt.Println()
		},
	}
}

// SetPipeline injects the chat pipeline. The pipeline is built after the
// REPL because it streams into the REPL's sinks.
func (r *REPL) SetPipeline(p *chat.Pipeline) {
	r.opts.Pipeline = p
}

// Close persists input history and restores the terminal.
func (r *REPL) Close() {
	if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
		r.line.WriteHistory(f)
		f.Close()
	}
	r.line.Close()
}

// Run drives the session until the user quits or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	r.banner()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		input, err := r.line.Prompt(PromptStyle.Render("yat> "))
		if err != nil {
			// Ctrl+C or Ctrl+D ends the session.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := r.handleCommand(ctx, input); quit {
				return nil
			}
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		r.runPrompt(ctx, input)
	}
}

// runPrompt submits a prompt and blocks until the turn completes, so the
// streamed response finishes before the next input prompt appears.
func (r *REPL) runPrompt(ctx context.Context, prompt string) {
	r.printed = 0
	r.opts.Pipeline.Submit(prompt)
	if err := r.opts.Pipeline.Wait(ctx); err != nil {
		fmt.Println()
	}
}

func (r *REPL) banner() {
	fmt.Println(TitleStyle.Render("yat - yet another chat"))
	providerID, modelID := r.opts.Manager.Active()
	if providerID != "" && modelID != "" {
		fmt.Println(DimStyle.Render(fmt.Sprintf("provider: %s  model: %s", providerID, modelID)))
	} else {
		fmt.Println(DimStyle.Render("no model selected; use /models then /model <n>"))
	}
	fmt.Println(DimStyle.Render("type a message, or /help for commands"))
	fmt.Println(RenderSeparator(70))
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand dispatches a slash command. Returns true to quit.
func (r *REPL) handleCommand(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		r.cmdHelp()
	case "/new":
		r.opts.Pipeline.NewConversation()
		fmt.Println(SuccessStyle.Render("started a new chat"))
	case "/list":
		r.cmdList(ctx)
	case "/load":
		r.cmdLoad(ctx, args)
	case "/delete":
		r.cmdDelete(ctx, args)
	case "/models":
		r.cmdModels(ctx)
	case "/model":
		r.cmdModel(args)
	case "/providers":
		r.cmdProviders()
	case "/enable":
		r.cmdSetEnabled(args, true)
	case "/disable":
		r.cmdSetEnabled(args, false)
	case "/key":
		r.cmdKey(args)
	case "/reload":
		r.cmdReload(ctx)
	case "/status":
		r.cmdStatus(ctx)
	default:
		fmt.Println(ErrorStyle.Render("unknown command ") + DimStyle.Render(cmd+" (try /help)"))
	}
	return false
}

func (r *REPL) cmdHelp() {
	help := [][2]string{
		{"/new", "start a new chat"},
		{"/list", "list saved conversations"},
		{"/load <n|id>", "load a conversation"},
		{"/delete <n|id>", "delete a conversation"},
		{"/models", "refresh and list available models"},
		{"/model <n|key>", "select the active model"},
		{"/providers", "show provider status"},
		{"/enable <id>", "enable a provider"},
		{"/disable <id>", "disable a provider"},
		{"/key <ENV_VAR> <value>", "store a credential in the env file"},
		{"/reload", "reload plugins and providers"},
		{"/status", "show session status"},
		{"/quit", "exit"},
	}
	for _, h := range help {
		fmt.Printf("  %s %s\n", util.PadWidth(h[0], 24), DimStyle.Render(h[1]))
	}
}

func (r *REPL) cmdList(ctx context.Context) {
	convs, err := r.opts.Pipeline.ListConversations(ctx, 0)
	if err != nil {
		fmt.Println(ErrorStyle.Render("failed to list conversations: ") + err.Error())
		return
	}
	if len(convs) == 0 {
		fmt.Println(DimStyle.Render("no conversations yet"))
		return
	}
	r.lastList = convs
	for i, c := range convs {
		marker := " "
		if c.ID == r.opts.Pipeline.CurrentConversationID() {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s  %s\n",
			marker, i+1,
			util.PadWidth(util.TruncateWidth(c.Title, 40), 40),
			DimStyle.Render(fmt.Sprintf("%s|%s  %s", c.ProviderID, c.ModelID, c.UpdatedAt.Format("2006-01-02 15:04"))))
	}
}

func (r *REPL) cmdLoad(ctx context.Context, args []string) {
	id, ok := r.resolveConversation(args)
	if !ok {
		return
	}
	msgs, err := r.opts.Pipeline.LoadConversation(ctx, id)
	if err != nil {
		fmt.Println(ErrorStyle.Render("failed to load: ") + err.Error())
		return
	}
	fmt.Println(RenderSeparator(70))
	for _, m := range msgs {
		fmt.Printf("%s %s\n", TitleStyle.Render(m.Role.DisplayName()+":"), m.Content)
	}
	fmt.Println(RenderSeparator(70))
}

func (r *REPL) cmdDelete(ctx context.Context, args []string) {
	id, ok := r.resolveConversation(args)
	if !ok {
		return
	}
	if err := r.opts.Pipeline.DeleteConversation(ctx, id); err != nil {
		fmt.Println(ErrorStyle.Render("failed to delete: ") + err.Error())
		return
	}
	r.lastList = nil
	fmt.Println(SuccessStyle.Render("conversation deleted"))
}

// resolveConversation turns "/load 2" or "/load <uuid>" into an id using
// the numbering of the last /list.
func (r *REPL) resolveConversation(args []string) (string, bool) {
	if len(args) != 1 {
		fmt.Println(DimStyle.Render("usage: /load <n|id> (run /list first)"))
		return "", false
	}
	if n, err := strconv.Atoi(args[0]); err == nil {
		if n < 1 || n > len(r.lastList) {
			fmt.Println(ErrorStyle.Render("no such entry; run /list"))
			return "", false
		}
		return r.lastList[n-1].ID, true
	}
	return args[0], true
}

func (r *REPL) cmdModels(ctx context.Context) {
	models := r.opts.Manager.AllModels(ctx)
	if len(models) == 0 {
		fmt.Println(WarningStyle.Render("no models available; check /providers"))
		return
	}
	r.choices = llm.ModelChoices(models)
	for i, c := range r.choices {
		fmt.Printf("  %2d. %s  %s\n", i+1,
			util.PadWidth(util.TruncateWidth(c.Label, 44), 44),
			DimStyle.Render(c.Key))
	}
}

func (r *REPL) cmdModel(args []string) {
	if len(args) != 1 {
		fmt.Println(DimStyle.Render("usage: /model <n|providerID|modelID>"))
		return
	}
	key := args[0]
	if n, err := strconv.Atoi(key); err == nil {
		if n < 1 || n > len(r.choices) {
			fmt.Println(ErrorStyle.Render("no such entry; run /models"))
			return
		}
		key = r.choices[n-1].Key
	}

	providerID, modelID, found := strings.Cut(key, "|")
	if !found || providerID == "" || modelID == "" {
		fmt.Println(ErrorStyle.Render("model key must be <providerID>|<modelID>"))
		return
	}
	if err := r.opts.Manager.SetActive(providerID, modelID); err != nil {
		fmt.Println(ErrorStyle.Render("failed to select: ") + err.Error())
		return
	}
	r.opts.Providers.MarkActive(providerID)
	r.opts.Config.SetLastModel(providerID, modelID)
	if err := r.opts.Config.Save(); err != nil {
		fmt.Println(WarningStyle.Render("selection not persisted: ") + err.Error())
	}
	fmt.Println(SuccessStyle.Render("model set to ") + key)
}

func (r *REPL) cmdProviders() {
	for _, p := range r.opts.Providers.All() {
		status := statusStyle(p.Status).Render(util.PadWidth(p.Status, 10))
		line := fmt.Sprintf("  %s %s %s", util.PadWidth(p.ID, 12), status, DimStyle.Render(p.Name))
		if p.ErrorMessage != "" {
			line += "  " + ErrorStyle.Render(p.ErrorMessage)
		}
		fmt.Println(line)
	}
	if errs := r.opts.Plugins.Errors(); len(errs) > 0 {
		ids := make([]string, 0, len(errs))
		for id := range errs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Println(WarningStyle.Render("plugin errors:"))
		for _, id := range ids {
			fmt.Printf("  %s %s\n", util.PadWidth(id, 12), DimStyle.Render(errs[id]))
		}
	}
}

func (r *REPL) cmdSetEnabled(args []string, enabled bool) {
	if len(args) != 1 {
		fmt.Println(DimStyle.Render("usage: /enable <id> or /disable <id>"))
		return
	}
	if err := r.opts.Providers.SetEnabled(args[0], enabled); err != nil {
		fmt.Println(ErrorStyle.Render("failed: ") + err.Error())
		return
	}
	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	fmt.Println(SuccessStyle.Render(args[0]+" "+state) + DimStyle.Render(" (takes effect after /reload)"))
}

func (r *REPL) cmdKey(args []string) {
	if len(args) != 2 {
		fmt.Println(DimStyle.Render("usage: /key <ENV_VAR> <value>"))
		return
	}
	if err := r.opts.Env.SetSecret(args[0], args[1]); err != nil {
		fmt.Println(ErrorStyle.Render("failed to store key: ") + err.Error())
		return
	}
	fmt.Println(SuccessStyle.Render("credential stored") + DimStyle.Render(" (run /reload to apply)"))
}

func (r *REPL) cmdReload(ctx context.Context) {
	if r.opts.ReloadProviders == nil {
		fmt.Println(WarningStyle.Render("reload not available"))
		return
	}
	if err := r.opts.ReloadProviders(ctx); err != nil {
		fmt.Println(ErrorStyle.Render("reload failed: ") + err.Error())
		return
	}
	fmt.Println(SuccessStyle.Render("plugins and providers reloaded"))
}

func (r *REPL) cmdStatus(ctx context.Context) {
	providerID, modelID := r.opts.Manager.Active()
	fmt.Printf("  %s %s\n", util.PadWidth("provider:", 12), providerID)
	fmt.Printf("  %s %s\n", util.PadWidth("model:", 12), modelID)
	fmt.Printf("  %s %s\n", util.PadWidth("chat:", 12), orNone(r.opts.Pipeline.CurrentConversationID()))
	fmt.Printf("  %s %s\n", util.PadWidth("data dir:", 12), r.opts.Config.DataDir())

	if p, ok := r.opts.Manager.Get(providerID); ok {
		if p.CheckHealth(ctx) {
			fmt.Printf("  %s %s\n", util.PadWidth("health:", 12), SuccessStyle.Render("ok"))
		} else {
			fmt.Printf("  %s %s\n", util.PadWidth("health:", 12), ErrorStyle.Render("unreachable"))
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return DimStyle.Render("(none)")
	}
	return s
}
