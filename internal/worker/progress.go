package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Stats is a snapshot of pool progress.
type Stats struct {
	Completed int
	Total     int
	Failed    int
	// Cached counts completed tasks that found their tile already stored.
	Cached int
}

// Fetched returns the number of tiles actually downloaded.
func (s Stats) Fetched() int {
	return s.Completed - s.Failed - s.Cached
}

// Progress tracks and displays tile prefetch progress.
type Progress struct {
	startTime time.Time
	output    io.Writer
	stats     Stats
	mu        sync.RWMutex
	enabled   bool
}

// NewProgress creates a new progress tracker.
func NewProgress(total int, enabled bool) *Progress {
	return &Progress{
		stats:     Stats{Total: total},
		startTime: time.Now(),
		output:    os.Stderr,
		enabled:   enabled,
	}
}

// Update records the latest pool statistics.
func (p *Progress) Update(s Stats) {
	p.mu.Lock()
	p.stats = s
	p.mu.Unlock()

	if p.enabled {
		p.Print()
	}
}

// Callback returns a ProgressFunc suitable for use with Pool.Config.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

// Stats returns the last recorded statistics.
func (p *Progress) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Print displays the current progress to output.
func (p *Progress) Print() {
	p.mu.RLock()
	s := p.stats
	startTime := p.startTime
	p.mu.RUnlock()

	elapsed := time.Since(startTime)

	var rate float64
	var eta time.Duration
	if s.Completed > 0 {
		rate = float64(s.Completed) / elapsed.Seconds()
		remaining := s.Total - s.Completed
		if rate > 0 {
			eta = time.Duration(float64(remaining)/rate) * time.Second
		}
	}

	barWidth := 30
	filledWidth := barWidth
	if s.Total > 0 {
		filledWidth = min(barWidth, s.Completed*barWidth/s.Total)
	}
	bar := strings.Repeat("█", filledWidth) + strings.Repeat("░", barWidth-filledWidth)

	line := fmt.Sprintf("\r[%s] %d/%d tiles", bar, s.Completed, s.Total)
	switch {
	case s.Failed > 0 && s.Cached > 0:
		line += fmt.Sprintf(" (%d failed, %d cached)", s.Failed, s.Cached)
	case s.Failed > 0:
		line += fmt.Sprintf(" (%d failed)", s.Failed)
	case s.Cached > 0:
		line += fmt.Sprintf(" (%d cached)", s.Cached)
	}
	line += fmt.Sprintf(" - %.1f tiles/sec", rate)
	if eta > 0 && s.Completed < s.Total {
		line += fmt.Sprintf(" - ETA: %s", formatDuration(eta))
	}
	if s.Completed == s.Total {
		line += fmt.Sprintf(" - Done in %s", formatDuration(elapsed))
	}

	// Pad to clear previous line content
	line += "          "

	fmt.Fprint(p.output, line)
}

// Done prints the final progress and a newline.
func (p *Progress) Done() {
	if p.enabled {
		p.Print()
		fmt.Fprintln(p.output)
	}
}

// Summary returns a summary string of the completed work.
func (p *Progress) Summary() string {
	p.mu.RLock()
	s := p.stats
	startTime := p.startTime
	p.mu.RUnlock()

	elapsed := time.Since(startTime)

	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(s.Completed) / elapsed.Seconds()
	}

	return fmt.Sprintf("Fetched %d/%d tiles (%d already cached, %d failed) in %s (%.1f tiles/sec)",
		s.Fetched(), s.Total, s.Cached, s.Failed, formatDuration(elapsed), rate)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, mins)
}
