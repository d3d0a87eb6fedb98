package shared

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"
)

// Constants
const (
	DefaultMaxRetries = 5
	UserAgent         = "autotag/1.0"
)

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Status, e.Message)
}

// IsRetryableHTTPError checks if an HTTP error should be retried
func IsRetryableHTTPError(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	switch httpErr.StatusCode {
	case http.StatusServiceUnavailable,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusGatewayTimeout,
		http.StatusInternalServerError:
		return true
	}
	return false
}

// ClassifyHTTPError wraps an HTTP failure as transient or permanent.
func ClassifyHTTPError(err *HTTPError) error {
	if IsRetryableHTTPError(err) {
		return Transient(err, 0)
	}
	return Permanent(err)
}

// GetUserInput prompts the user for input with a default value
func GetUserInput(prompt, defaultValue string) string {
	if defaultValue != "" {
		prompt = fmt.Sprintf("%s [%s]", prompt, defaultValue)
	}
	ColorPrompt.Print(prompt + ": ")
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" && defaultValue != "" {
			return defaultValue
		}
		return input
	}
	return defaultValue
}

// GetYesNoInput prompts the user for a yes/no input with a default value
func GetYesNoInput(prompt string, defaultValue string) bool {
	for {
		input := GetUserInput(prompt, defaultValue)
		switch strings.ToLower(input) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		default:
			ColorError.Printf("❌ Invalid input. Please enter 'y' or 'n'.\n")
		}
	}
}

// FileExists checks if a file exists at the given path
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// TruncateString shortens s to maxLen runes, adding an ellipsis when cut.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 3 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

// FormatKbps renders a bitrate in bits per second as kbps.
func FormatKbps(bps int) string {
	return fmt.Sprintf("%.1f kbps", float64(bps)/1000)
}
