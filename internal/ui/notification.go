package ui

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const appName = "heat2go"

// For a list of possible icons, see: https://specifications.freedesktop.org/icon-naming-spec/icon-naming-spec-latest.html
const (
	IconDialogError = "dialog-error"
	IconDialogWarn  = "dialog-warning"

	UrgencyNormal   = "normal"
	UrgencyCritical = "critical"
)

type displaySession struct {
	display string
	user    string
	userId  string
}

func NotifyWarn(title, text string) {
	NotifySend(UrgencyNormal, title, text, IconDialogWarn)
}

func NotifyError(title, text string) {
	NotifySend(UrgencyCritical, title, text, IconDialogError)
}

// NotifySend shows a desktop notification in the session of the user owning $DISPLAY.
func NotifySend(urgency, title, text, icon string) {
	session, err := findDisplaySession()
	if err != nil {
		Debug("Cannot send notification: %v", err)
		return
	}

	cmd := exec.Command("sudo", "-u", session.user,
		"DISPLAY="+session.display,
		"DBUS_SESSION_BUS_ADDRESS=unix:path=/run/user/"+session.userId+"/bus",
		"notify-send",
		"-a", appName,
		"-u", urgency,
		"-i", icon,
		title, text,
	)
	if err := cmd.Run(); err != nil {
		Warning("Error sending notification: %v", err)
	}
}

func findDisplaySession() (displaySession, error) {
	display, exists := os.LookupEnv("DISPLAY")
	if !exists {
		return displaySession{}, errors.New("missing env variable 'DISPLAY'")
	}

	output, err := exec.Command("who").Output()
	if err != nil {
		return displaySession{}, fmt.Errorf("unable to list sessions: %w", err)
	}
	user := findUserOfDisplay(string(output), display)
	if len(user) <= 0 {
		return displaySession{}, fmt.Errorf("no user found for display %s", display)
	}

	output, err = exec.Command("id", "-u", user).Output()
	if err != nil {
		return displaySession{}, fmt.Errorf("unable to detect user id of %s: %w", user, err)
	}

	return displaySession{
		display: display,
		user:    user,
		userId:  strings.TrimSpace(string(output)),
	}, nil
}

func findUserOfDisplay(who string, display string) string {
	for _, line := range strings.Split(who, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.Contains(line, display) {
			return fields[0]
		}
	}
	return ""
}
