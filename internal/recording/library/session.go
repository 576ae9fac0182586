package library

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/avatar-studio/internal/recording"
)

var _ recording.Sink = (*Library)(nil)

type frameJob struct {
	index int
	img   *image.RGBA
}

// Session writes one recording's frames as numbered PNG files. Frames are
// encoded by a background worker; WriteFrame never blocks the caller.
type Session struct {
	lib  *Library
	rec  Recording
	lock *flock.Flock
	log  *zap.Logger

	queue chan frameJob
	done  chan struct{}

	mu       sync.Mutex
	next     int
	written  int
	dropped  int
	encErr   error
	finished bool
}

// Open starts a new session in a fresh directory. The session holds the
// directory lock until Finish.
func (l *Library) Open() (recording.Session, error) {
	return l.Begin(context.Background())
}

// Begin is Open with a context for the catalog insert.
func (l *Library) Begin(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	dir := filepath.Join(l.dir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockName))
	if err := lock.Lock(); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("lock session: %w", err)
	}

	s := &Session{
		lib:   l,
		rec:   Recording{ID: id, Dir: dir, CreatedAt: time.Now()},
		lock:  lock,
		log:   l.log.With(zap.String("recording", id)),
		queue: make(chan frameJob, l.pending),
		done:  make(chan struct{}),
	}
	if err := l.insert(ctx, &s.rec); err != nil {
		_ = lock.Unlock()
		_ = os.RemoveAll(dir)
		return nil, err
	}

	go s.encode()
	s.log.Debug("recording session opened", zap.String("dir", dir))
	return s, nil
}

// ID returns the recording id.
func (s *Session) ID() string {
	return s.rec.ID
}

// WriteFrame queues img for encoding. When the queue is full the frame is
// dropped and counted.
func (s *Session) WriteFrame(img *image.RGBA, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return fmt.Errorf("write frame: session %s finished", s.rec.ID)
	}
	if s.rec.Width == 0 {
		b := img.Bounds()
		s.rec.Width, s.rec.Height = b.Dx(), b.Dy()
	}

	select {
	case s.queue <- frameJob{index: s.next, img: img}:
		s.next++
	default:
		s.dropped++
		if s.dropped == 1 {
			s.log.Warn("encoder falling behind, dropping frames")
		}
	}
	return nil
}

func (s *Session) encode() {
	defer close(s.done)
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	for job := range s.queue {
		err := s.writePNG(&enc, job)

		s.mu.Lock()
		if err != nil {
			s.dropped++
			if s.encErr == nil {
				s.encErr = err
				s.log.Error("encode frame failed", zap.Int("frame", job.index), zap.Error(err))
			}
		} else {
			s.written++
		}
		s.mu.Unlock()
	}
}

func (s *Session) writePNG(enc *png.Encoder, job frameJob) error {
	path := filepath.Join(s.rec.Dir, fmt.Sprintf("%s%06d%s", framePfx, job.index, frameExt))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := enc.Encode(f, job.img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Finish drains the encoder, records the session in the catalog and
// releases the directory lock.
func (s *Session) Finish(duration time.Duration) (*recording.Output, error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s already finished", s.rec.ID)
	}
	s.finished = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	defer func() { _ = s.lock.Unlock() }()

	s.mu.Lock()
	s.rec.Duration = duration
	s.rec.Frames = s.written
	s.rec.Dropped = s.dropped
	s.rec.Finished = true
	rec := s.rec
	s.mu.Unlock()

	if err := s.lib.finish(context.Background(), &rec); err != nil {
		return nil, err
	}

	s.log.Info("recording saved",
		zap.Int("frames", rec.Frames),
		zap.Int("dropped", rec.Dropped),
		zap.Duration("duration", duration))
	return &recording.Output{
		ID:       rec.ID,
		Dir:      rec.Dir,
		Frames:   rec.Frames,
		Dropped:  rec.Dropped,
		Duration: duration,
	}, nil
}
