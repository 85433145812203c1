package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"racing-insights/internal/api"
	"racing-insights/internal/auth"
	"racing-insights/internal/chat"
	"racing-insights/internal/config"
	"racing-insights/internal/session"
	"racing-insights/internal/terminal"
	"racing-insights/internal/ui"
)

// progress is shown while a request is outstanding
type progress interface {
	Start(msg string)
	Stop()
}

// app is the interactive client: the sign-in menu and the chat loop
type app struct {
	cfg        *config.Config
	session    *session.Store
	client     *api.Client
	guard      *auth.Guard
	controller *chat.Controller
	index      *chat.Index
	display    *ui.Display
	input      *terminal.Input
	spinner    progress
	logger     zerolog.Logger
	now        func() time.Time
}

// action tells the loop what to do after a command
type action int

const (
	actionContinue action = iota
	actionSignOut
	actionExit
)

// run alternates between the sign-in menu and the chat until the user exits
func (a *app) run(ctx context.Context) {
	a.display.PrintBanner()
	defer a.display.PrintGoodbye()

	for ctx.Err() == nil {
		status, err := a.guard.Check(ctx)
		switch status {
		case auth.StatusExpired:
			a.display.PrintWarning("Your session has expired. Please sign in again.")
		case auth.StatusOffline:
			a.display.PrintWarning(fmt.Sprintf("Could not reach the server, continuing offline: %v", err))
		case auth.StatusUnverified:
			a.display.PrintWarning(fmt.Sprintf("Could not verify your session: %v", err))
		}

		if !status.CanChat() {
			if a.signInMenu(ctx) == actionExit {
				return
			}
			continue
		}

		if a.chatLoop(ctx) == actionExit {
			return
		}
	}
}

// signInMenu handles the signed-out routes
func (a *app) signInMenu(ctx context.Context) action {
	for ctx.Err() == nil {
		a.display.PrintSignInMenu()
		choice, err := a.input.Prompt("Choose an option: ")
		if err != nil {
			return actionExit
		}

		switch strings.ToLower(choice) {
		case "1", "/signin":
			if a.signIn(ctx) {
				return actionContinue
			}
		case "2", "/signup":
			if a.signUp(ctx) {
				return actionContinue
			}
		case "3", "/exit", "exit", "quit":
			return actionExit
		default:
			a.display.PrintWarning("Please choose 1, 2 or 3")
		}
	}
	return actionExit
}

func (a *app) signIn(ctx context.Context) bool {
	email, err := a.input.Prompt("Email: ")
	if err != nil {
		return false
	}
	password, err := a.input.ReadPassword("Password: ")
	if err != nil {
		return false
	}
	remember, err := a.input.Confirm("Remember me?")
	if err != nil {
		return false
	}

	a.startProgress("Signing in")
	err = a.guard.SignIn(ctx, email, password, remember)
	a.stopProgress()
	if err != nil {
		a.display.PrintError(err)
		return false
	}

	a.display.PrintSuccess("Signed in as " + email)
	return true
}

func (a *app) signUp(ctx context.Context) bool {
	email, err := a.input.Prompt("Email: ")
	if err != nil {
		return false
	}
	username, err := a.input.Prompt("Username: ")
	if err != nil {
		return false
	}
	password, err := a.input.ReadPassword("Password (min 8 characters): ")
	if err != nil {
		return false
	}
	confirm, err := a.input.ReadPassword("Confirm password: ")
	if err != nil {
		return false
	}
	if password != confirm {
		a.display.PrintWarning("Passwords do not match")
		return false
	}

	a.startProgress("Creating account")
	err = a.guard.SignUp(ctx, email, username, password)
	a.stopProgress()
	if err != nil {
		a.display.PrintError(err)
		return false
	}

	a.display.PrintSuccess("Account created. Welcome, " + username + "!")
	return true
}

// chatLoop runs the chat route until sign-out or exit
func (a *app) chatLoop(ctx context.Context) action {
	watchCtx, stopWatch := context.WithCancel(ctx)
	events, unsubscribe := a.controller.Subscribe()
	defer func() {
		stopWatch()
		unsubscribe()
	}()
	a.index.Reset()
	go a.index.Watch(watchCtx, events)
	go func() {
		if _, err := a.index.Refresh(watchCtx); err != nil {
			a.logger.Debug().Err(err).Msg("initial history refresh failed")
		}
	}()

	if threadID, ok := a.session.ActiveThreadID(); ok {
		if act := a.openThread(ctx, threadID); act != actionContinue {
			return act
		}
	} else {
		a.controller.StartNewThread()
		a.display.PrintTranscript(nil, true)
	}
	a.display.PrintHelp()

	for ctx.Err() == nil {
		a.display.PrintPrompt()
		line, err := a.input.ReadLine()
		if err != nil {
			return actionExit
		}
		if line == "" {
			continue
		}

		var act action
		if strings.HasPrefix(line, "/") {
			act = a.handleCommand(ctx, line)
		} else {
			act = a.send(ctx, line)
		}
		if act != actionContinue {
			return act
		}
	}
	return actionExit
}

// send posts text, or a suggestion when a number is picked on the empty screen
func (a *app) send(ctx context.Context, text string) action {
	if a.controller.ShowWelcome() {
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(ui.Suggestions) {
			text = ui.Suggestions[n-1]
		}
	}

	before := len(a.controller.Transcript())

	a.startProgress("Thinking")
	err := a.controller.Send(ctx, text)
	a.stopProgress()

	if errors.Is(err, chat.ErrStaleResult) {
		return actionContinue
	}
	for _, t := range a.controller.Transcript()[before:] {
		a.display.PrintTurn(t)
	}
	return a.checkUnauthorized(err)
}

// checkUnauthorized signs out when err is a rejected token
func (a *app) checkUnauthorized(err error) action {
	if errors.Is(err, api.ErrUnauthorized) {
		a.guard.Logout()
		a.display.PrintWarning("Your session is no longer valid. Please sign in again.")
		return actionSignOut
	}
	return actionContinue
}

func (a *app) openThread(ctx context.Context, threadID string) action {
	a.startProgress("Loading conversation")
	err := a.controller.LoadThread(ctx, threadID)
	a.stopProgress()
	if errors.Is(err, chat.ErrStaleResult) {
		return actionContinue
	}
	return a.showLoaded()
}

func (a *app) showLoaded() action {
	if loadErr := a.controller.LoadError(); loadErr != nil {
		if act := a.checkUnauthorized(loadErr); act != actionContinue {
			return act
		}
		a.display.PrintWarning("Failed to load conversation history. Type /retry to try again.")
	}
	a.display.PrintTranscript(a.controller.Transcript(), a.controller.ShowWelcome())
	return actionContinue
}

// handleCommand dispatches a slash command
func (a *app) handleCommand(ctx context.Context, line string) action {
	fields := strings.Fields(line)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "/exit", "/quit":
		return actionExit

	case "/logout":
		a.guard.Logout()
		a.display.PrintSuccess("Signed out")
		return actionSignOut

	case "/help":
		a.display.PrintHelp()

	case "/clear":
		a.display.ClearScreen()
		a.display.PrintTranscript(a.controller.Transcript(), a.controller.ShowWelcome())

	case "/new":
		a.controller.StartNewThread()
		a.display.PrintSuccess("Started a new conversation")
		a.display.PrintTranscript(nil, true)

	case "/open":
		if len(args) != 1 {
			a.display.PrintWarning("Usage: /open <thread>")
			return actionContinue
		}
		return a.openThread(ctx, args[0])

	case "/retry":
		a.startProgress("Loading conversation")
		err := a.controller.Retry(ctx)
		a.stopProgress()
		if errors.Is(err, chat.ErrStaleResult) {
			return actionContinue
		}
		return a.showLoaded()

	case "/history":
		return a.showHistory(ctx, strings.Join(args, " "))

	case "/profile":
		return a.profile(ctx, args)

	case "/settings":
		a.display.PrintSettings(a.session.Preferences())

	case "/theme":
		a.setTheme(args)

	case "/notify":
		a.setNotification(args)

	case "/status":
		status, _ := a.guard.Check(ctx)
		a.display.PrintStatus(status, a.guard.Describe(), a.controller.ThreadID(), a.now())
		if !status.CanChat() {
			return actionSignOut
		}

	default:
		a.display.PrintWarning(fmt.Sprintf("Unknown command %s. Type /help for a list.", cmd))
	}
	return actionContinue
}

func (a *app) showHistory(ctx context.Context, search string) action {
	if _, ok := a.index.RefreshedAt(); !ok {
		a.startProgress("Loading history")
		_, err := a.index.Refresh(ctx)
		a.stopProgress()
		if err != nil {
			if act := a.checkUnauthorized(err); act != actionContinue {
				return act
			}
			a.display.PrintError(err)
			return actionContinue
		}
	}
	a.display.PrintBuckets(a.index.Buckets(search), a.controller.ThreadID())
	return actionContinue
}

func (a *app) profile(ctx context.Context, args []string) action {
	if len(args) >= 2 && strings.ToLower(args[0]) == "username" {
		name := strings.Join(args[1:], " ")
		a.startProgress("Updating profile")
		p, err := a.client.UpdateProfile(ctx, api.ProfileUpdate{Username: &name})
		a.stopProgress()
		if err != nil {
			if act := a.checkUnauthorized(err); act != actionContinue {
				return act
			}
			a.display.PrintError(err)
			return actionContinue
		}
		a.display.PrintSuccess("Profile updated")
		a.display.PrintProfile(p)
		return actionContinue
	}
	if len(args) > 0 {
		a.display.PrintWarning("Usage: /profile [username <name>]")
		return actionContinue
	}

	a.startProgress("Loading profile")
	p, err := a.client.FetchProfile(ctx)
	a.stopProgress()
	if err != nil {
		if act := a.checkUnauthorized(err); act != actionContinue {
			return act
		}
		a.display.PrintWarning(fmt.Sprintf("Showing cached profile: %v", err))
		p, _ = a.session.Profile()
	}
	a.display.PrintProfile(p)
	return actionContinue
}

func (a *app) setTheme(args []string) {
	if len(args) != 1 || !session.Theme(strings.ToLower(args[0])).Valid() {
		a.display.PrintWarning("Usage: /theme <light|dark|system>")
		return
	}
	prefs := a.session.Preferences()
	prefs.Theme = session.Theme(strings.ToLower(args[0]))
	a.session.SetPreferences(prefs)
	a.display.SetTheme(prefs.Theme)
	a.display.PrintSuccess("Theme set to " + string(prefs.Theme))
}

func (a *app) setNotification(args []string) {
	if len(args) != 2 {
		a.display.PrintWarning("Usage: /notify <email|push|chat> <on|off>")
		return
	}

	var on bool
	switch strings.ToLower(args[1]) {
	case "on":
		on = true
	case "off":
	default:
		a.display.PrintWarning("Usage: /notify <email|push|chat> <on|off>")
		return
	}

	prefs := a.session.Preferences()
	switch strings.ToLower(args[0]) {
	case "email":
		prefs.Notifications.Email = on
	case "push":
		prefs.Notifications.Push = on
	case "chat":
		prefs.Notifications.ChatUpdates = on
	default:
		a.display.PrintWarning("Usage: /notify <email|push|chat> <on|off>")
		return
	}
	a.session.SetPreferences(prefs)
	a.display.PrintSettings(prefs)
}

func (a *app) startProgress(msg string) {
	if a.spinner != nil {
		a.spinner.Start(msg)
	}
}

func (a *app) stopProgress() {
	if a.spinner != nil {
		a.spinner.Stop()
	}
}
