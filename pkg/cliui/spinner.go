package cliui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")
)

const spinnerInterval = 100 * time.Millisecond

// Wait redraws a spinner next to msg on w until fn returns, then leaves a
// single summary line with the outcome and elapsed time. It returns fn's
// error.
func Wait(w io.Writer, msg string, fn func() error) error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		tick := time.NewTicker(spinnerInterval)
		defer tick.Stop()
		for i := 0; ; i++ {
			frame := spinnerFrames[i%len(spinnerFrames)]
			fmt.Fprintf(w, "\r  %s %s", spinnerStyle.Render(string(frame)), msg)
			select {
			case <-stop:
				return
			case <-tick.C:
			}
		}
	}()

	start := time.Now()
	err := fn()
	close(stop)
	<-done

	summary := FormatDuration(time.Since(start))
	if err != nil {
		summary = "failed after " + summary
	}
	// Trailing spaces clear what is left of the spinner line.
	fmt.Fprintf(w, "\r  %s %s %s   \n", Mark(err == nil), msg, StepStyle.Render(summary))
	return err
}
