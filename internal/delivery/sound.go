package delivery

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"sitealert/internal/notification"
	logx "sitealert/pkg/logx"
)

// Cue is an audio clip and the volume to play it at (0..1).
type Cue struct {
	Path   string
	Volume float64
}

// DefaultCue is the single alert sound.
var DefaultCue = Cue{Path: SoundPath, Volume: 0.5}

// Player plays a cue.
type Player interface {
	Play(ctx context.Context, c Cue) error
}

// Sound is the audible alert channel. Every record plays the same cue.
type Sound struct {
	player Player
	cue    Cue
	log    logx.Logger
}

func NewSound(p Player, log logx.Logger) *Sound {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sound{player: p, cue: DefaultCue, log: log.With(logx.String("comp", "sound"))}
}

func (s *Sound) Deliver(ctx context.Context, rec notification.Record) error {
	if s.player == nil {
		return ErrUnsupported
	}
	if err := s.player.Play(ctx, s.cue); err != nil {
		return fmt.Errorf("play %s: %w", s.cue.Path, err)
	}
	return nil
}

// BellPlayer writes a terminal bell. It ignores path and volume.
type BellPlayer struct {
	W io.Writer
}

func (b BellPlayer) Play(context.Context, Cue) error {
	_, err := b.W.Write([]byte{'\a'})
	return err
}

// CommandPlayer shells out to an audio player. Supported commands are
// paplay (PulseAudio, volume 0..65536), pw-play (PipeWire, volume 0..1)
// and anything else, which receives just the file.
type CommandPlayer struct {
	Command  string
	AssetDir string
}

func (p CommandPlayer) Play(ctx context.Context, c Cue) error {
	cmd := p.Command
	if cmd == "" {
		cmd = "paplay"
	}
	file := filepath.Join(p.AssetDir, filepath.FromSlash(strings.TrimPrefix(c.Path, "/")))
	out, err := exec.CommandContext(ctx, cmd, p.args(cmd, file, c.Volume)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", cmd, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (CommandPlayer) args(cmd, file string, vol float64) []string {
	vol = min(max(vol, 0), 1)
	switch filepath.Base(cmd) {
	case "paplay":
		return []string{"--volume=" + strconv.Itoa(int(vol*65536)), file}
	case "pw-play":
		return []string{"--volume=" + strconv.FormatFloat(vol, 'f', 2, 64), file}
	default:
		return []string{file}
	}
}
