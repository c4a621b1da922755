package game

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	replayFormat  = "cellwars-replay"
	replayVersion = 2
	replayExt     = ".replay"
)

// ErrReplayCorrupt is returned when a stored frame no longer matches its checksum.
var ErrReplayCorrupt = errors.New("replay frame checksum mismatch")

// Frame is one recorded snapshot and the checksum taken when it was recorded.
type Frame struct {
	Snapshot *Snapshot
	Checksum string
}

// Replay is a recorded match, one frame per processed action, with a cursor
// for stepping through it.
type Replay struct {
	MatchID string

	mu     sync.RWMutex
	frames []Frame
	cursor int
}

// NewReplay creates an empty replay for a match.
func NewReplay(matchID string) *Replay {
	return &Replay{MatchID: matchID}
}

// Append checksums snap and adds it as the last frame.
func (r *Replay) Append(snap *Snapshot) error {
	sum, err := snap.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("checksum frame: %w", err)
	}
	r.mu.Lock()
	r.frames = append(r.frames, Frame{Snapshot: snap, Checksum: sum.Hash})
	r.mu.Unlock()
	return nil
}

// Len returns the number of frames.
func (r *Replay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

// At returns frame i's snapshot, or nil when i is out of range.
func (r *Replay) At(i int) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.frames) {
		return nil
	}
	return r.frames[i].Snapshot
}

// Seek moves the cursor to i, clamped to the recorded range, and returns the
// snapshot there.
func (r *Replay) Seek(i int) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seek(i)
}

// Step moves the cursor by delta frames. Stepping past either end stops there.
func (r *Replay) Step(delta int) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seek(r.cursor + delta)
}

func (r *Replay) seek(i int) *Snapshot {
	if len(r.frames) == 0 {
		return nil
	}
	r.cursor = max(0, min(i, len(r.frames)-1))
	return r.frames[r.cursor].Snapshot
}

// Cursor returns the current frame index.
func (r *Replay) Cursor() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursor
}

// Turn moves the cursor to the first frame of turn n.
func (r *Replay) Turn(n int) (*Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.frames {
		if f.Snapshot.Turn == n {
			return r.seek(i), true
		}
	}
	return nil, false
}

// Verify recomputes every frame checksum.
func (r *Replay) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, f := range r.frames {
		sum, err := f.Snapshot.ComputeChecksum()
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if sum.Hash != f.Checksum {
			return fmt.Errorf("frame %d: %w", i, ErrReplayCorrupt)
		}
	}
	return nil
}

type replayHeader struct {
	Format  string
	Version int
	MatchID string
	SavedAt time.Time
	Frames  int
}

// Encode writes the replay as a gzip-compressed gob stream.
func (r *Replay) Encode(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zw := gzip.NewWriter(w)
	enc := gob.NewEncoder(zw)
	hdr := replayHeader{
		Format:  replayFormat,
		Version: replayVersion,
		MatchID: r.MatchID,
		SavedAt: time.Now().UTC(),
		Frames:  len(r.frames),
	}
	if err := enc.Encode(&hdr); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for i := range r.frames {
		if err := enc.Encode(&r.frames[i]); err != nil {
			return fmt.Errorf("encode frame %d: %w", i, err)
		}
	}
	return zw.Close()
}

// DecodeReplay reads a replay written by Encode and verifies its frames.
func DecodeReplay(rd io.Reader) (*Replay, error) {
	zr, err := gzip.NewReader(rd)
	if err != nil {
		return nil, fmt.Errorf("open replay stream: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var hdr replayHeader
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if hdr.Format != replayFormat || hdr.Version != replayVersion {
		return nil, fmt.Errorf("unsupported replay %s v%d", hdr.Format, hdr.Version)
	}

	r := NewReplay(hdr.MatchID)
	r.frames = make([]Frame, hdr.Frames)
	for i := range r.frames {
		if err := dec.Decode(&r.frames[i]); err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", i, err)
		}
	}
	if err := r.Verify(); err != nil {
		return nil, err
	}
	return r, nil
}

func replayPath(dir, matchID string) string {
	return filepath.Join(dir, matchID+replayExt)
}

// SaveToFile writes the replay to <dir>/<match id>.replay, creating dir.
func (r *Replay) SaveToFile(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create replay dir: %w", err)
	}
	f, err := os.Create(replayPath(dir, r.MatchID))
	if err != nil {
		return fmt.Errorf("create replay file: %w", err)
	}
	if err := r.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadReplayFromFile loads a replay written by SaveToFile.
func LoadReplayFromFile(dir, matchID string) (*Replay, error) {
	f, err := os.Open(replayPath(dir, matchID))
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()
	return DecodeReplay(f)
}

// ReplayRecorder holds the replays of running matches and writes each one to
// its directory when the match finishes.
type ReplayRecorder struct {
	logger *zap.Logger
	dir    string

	mu     sync.Mutex
	active map[string]*Replay
}

// NewReplayRecorder creates a recorder writing into dir.
func NewReplayRecorder(logger *zap.Logger, dir string) *ReplayRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayRecorder{
		logger: logger,
		dir:    dir,
		active: make(map[string]*Replay),
	}
}

// Dir returns the directory replays are written to.
func (rr *ReplayRecorder) Dir() string {
	return rr.dir
}

// Begin starts a fresh replay for matchID, dropping any earlier one.
func (rr *ReplayRecorder) Begin(matchID string) {
	rr.mu.Lock()
	rr.active[matchID] = NewReplay(matchID)
	rr.mu.Unlock()
	rr.logger.Debug("replay recording started", zap.String("match_id", matchID))
}

// Record appends snap to matchID's replay. Matches without one are ignored.
func (rr *ReplayRecorder) Record(matchID string, snap *Snapshot) {
	rr.mu.Lock()
	r := rr.active[matchID]
	rr.mu.Unlock()
	if r == nil {
		return
	}
	if err := r.Append(snap); err != nil {
		rr.logger.Warn("replay frame dropped", zap.String("match_id", matchID), zap.Error(err))
	}
}

// Active reports whether matchID is being recorded.
func (rr *ReplayRecorder) Active(matchID string) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	_, ok := rr.active[matchID]
	return ok
}

// Current returns the in-progress replay of matchID.
func (rr *ReplayRecorder) Current(matchID string) (*Replay, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	r, ok := rr.active[matchID]
	return r, ok
}

// Finish stops recording matchID and writes its replay to disk. It returns
// false when the match was never recorded.
func (rr *ReplayRecorder) Finish(matchID string) (bool, error) {
	rr.mu.Lock()
	r, ok := rr.active[matchID]
	delete(rr.active, matchID)
	rr.mu.Unlock()
	if !ok {
		return false, nil
	}

	if err := r.SaveToFile(rr.dir); err != nil {
		return true, fmt.Errorf("save replay %s: %w", matchID, err)
	}
	rr.logger.Info("replay saved",
		zap.String("match_id", matchID),
		zap.Int("frames", r.Len()),
		zap.String("dir", rr.dir),
	)
	return true, nil
}

// Discard drops matchID's replay without writing it.
func (rr *ReplayRecorder) Discard(matchID string) {
	rr.mu.Lock()
	delete(rr.active, matchID)
	rr.mu.Unlock()
}

// Load reads a finished replay back from disk.
func (rr *ReplayRecorder) Load(matchID string) (*Replay, error) {
	return LoadReplayFromFile(rr.dir, matchID)
}
