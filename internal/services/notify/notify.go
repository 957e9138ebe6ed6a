package notify

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sentinelcam-go/internal/assets"
	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/logging"
)

// Notifier alerts the user that an object was seen. Notify must return
// immediately and never fails.
type Notifier interface {
	Notify(class string)
}

// Pattern is a vibration pattern: Count pulses of Pulse, each followed by Pause
type Pattern struct {
	Pulse time.Duration
	Pause time.Duration
	Count int
}

// DefaultPattern is three half-second pulses with half-second gaps
var DefaultPattern = Pattern{Pulse: 500 * time.Millisecond, Pause: 500 * time.Millisecond, Count: 3}

// Runner executes a command line and blocks until it exits
type Runner func(ctx context.Context, argv []string) error

// ExecRunner runs argv as a child process
func ExecRunner(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	return exec.CommandContext(ctx, argv[0], argv[1:]...).Run()
}

// maxConcurrentSounds caps overlapping sound processes when many objects
// are detected in quick succession
const maxConcurrentSounds = 4

// Service plays the notification sound and runs the vibration pattern for
// every call to Notify.
type Service struct {
	soundArgv   []string
	vibrateTmpl string
	pattern     Pattern
	run         Runner

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add in Notify against wg.Wait in Close
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	tempSound string

	soundSlots chan struct{}

	vibMu     sync.Mutex
	vibCancel context.CancelFunc

	notified atomic.Int64
	dropped  atomic.Int64

	logger zerolog.Logger
}

// NewService builds a notifier from config. A nil runner uses ExecRunner.
// An empty SoundFile plays the built-in sound.
func NewService(cfg *config.Config, run Runner) *Service {
	if run == nil {
		run = ExecRunner
	}

	pattern := Pattern{Pulse: cfg.VibratePulse, Pause: cfg.VibratePause, Count: cfg.VibrateCount}
	if pattern.Pulse <= 0 {
		pattern.Pulse = DefaultPattern.Pulse
	}
	if pattern.Pause < 0 {
		pattern.Pause = DefaultPattern.Pause
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		vibrateTmpl: cfg.VibrateCommand,
		pattern:     pattern,
		run:         run,
		ctx:         ctx,
		cancel:      cancel,
		soundSlots:  make(chan struct{}, maxConcurrentSounds),
		logger:      logging.NewServiceLogger(cfg, "notify"),
	}
	s.soundArgv = s.soundCommand(cfg.SoundCommand, cfg.SoundFile)
	return s
}

// soundCommand resolves the player argv. Sound is disabled, with a warning,
// when there is no player or the file cannot be found.
func (s *Service) soundCommand(command, file string) []string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		s.logger.Warn().Msg("No sound player configured, sound notifications disabled")
		return nil
	}

	if file == "" {
		path, err := writeBuiltinSound()
		if err != nil {
			s.logger.Warn().Err(err).Msg("Could not write built-in notification sound, sound notifications disabled")
			return nil
		}
		s.tempSound = path
		file = path
	} else if _, err := os.Stat(file); err != nil {
		s.logger.Warn().Err(err).Str("file", file).Msg("Notification sound not found, sound notifications disabled")
		return nil
	}

	argv := append(fields, file)
	s.logger.Info().Strs("argv", argv).Msg("Sound notifications enabled")
	return argv
}

// writeBuiltinSound copies the embedded sound to a temp file the player can open
func writeBuiltinSound() (string, error) {
	f, err := os.CreateTemp("", "sentinelcam-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp sound file: %w", err)
	}
	if _, err := f.Write(assets.NotificationSound); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp sound file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp sound file: %w", err)
	}
	return f.Name(), nil
}

// SoundEnabled reports whether Notify will start the sound player
func (s *Service) SoundEnabled() bool {
	return len(s.soundArgv) > 0
}

// Notify starts the sound and the vibration pattern and returns at once
func (s *Service) Notify(class string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.notified.Add(1)
	s.logger.Debug().Str("class", class).Msg("Object detected, notifying")

	s.playSound()
	s.vibrate()
}

// Notified returns the number of Notify calls accepted so far
func (s *Service) Notified() int64 {
	return s.notified.Load()
}

// Pattern returns the vibration pattern in use
func (s *Service) Pattern() Pattern {
	return s.pattern
}

// Close cancels running sounds and vibrations and waits for them to exit.
// Calls after the first are no-ops.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	if s.tempSound != "" {
		if err := os.Remove(s.tempSound); err != nil {
			s.logger.Debug().Err(err).Str("file", s.tempSound).Msg("Could not remove temp sound file")
		}
	}
	if d := s.dropped.Load(); d > 0 {
		s.logger.Info().Int64("dropped_sounds", d).Msg("Notifier closed")
	}
}

func (s *Service) playSound() {
	if len(s.soundArgv) == 0 {
		return
	}

	select {
	case s.soundSlots <- struct{}{}:
	default:
		s.dropped.Add(1)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.soundSlots }()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Recovered from panic in sound player")
			}
		}()

		if err := s.run(s.ctx, s.soundArgv); err != nil && s.ctx.Err() == nil {
			s.logger.Debug().Err(err).Strs("argv", s.soundArgv).Msg("Sound playback failed")
		}
	}()
}

// vibrate starts the pattern, replacing one that is still running
func (s *Service) vibrate() {
	if s.pattern.Count <= 0 {
		return
	}

	s.vibMu.Lock()
	if s.vibCancel != nil {
		s.vibCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.vibCancel = cancel
	s.vibMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Recovered from panic in vibrator")
			}
		}()
		s.runPattern(ctx)
	}()
}

func (s *Service) runPattern(ctx context.Context) {
	ms := s.pattern.Pulse.Milliseconds()
	argv := vibrateArgv(s.vibrateTmpl, ms)

	for i := 0; i < s.pattern.Count; i++ {
		if ctx.Err() != nil {
			return
		}

		if len(argv) > 0 {
			if err := s.run(ctx, argv); err != nil && ctx.Err() == nil {
				s.logger.Debug().Err(err).Strs("argv", argv).Msg("Vibrate command failed")
			}
		} else {
			s.logger.Debug().Int("pulse", i+1).Int64("duration_ms", ms).Msg("Vibrate")
		}

		wait := s.pattern.Pulse + s.pattern.Pause
		if i == s.pattern.Count-1 {
			wait = s.pattern.Pulse
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func vibrateArgv(tmpl string, ms int64) []string {
	if strings.TrimSpace(tmpl) == "" {
		return nil
	}
	if strings.Contains(tmpl, "%d") {
		tmpl = strings.Replace(tmpl, "%d", strconv.FormatInt(ms, 10), 1)
	}
	return strings.Fields(tmpl)
}
