package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/harunnryd/familiar/internal/config"

	"github.com/natefinch/atomic"
	"github.com/philippgille/chromem-go"
)

var ErrWorkerStopped = errors.New("store worker stopped")

type Operation int

const (
	OpAppendTranscript Operation = iota
	OpReadTranscript
	OpResetTranscript
	OpGetSession
	OpSaveSession
	OpListSessions
	OpUpsertVector
	OpSearchVectors
	OpCountVectors
)

type Request struct {
	Op       Operation
	Payload  interface{}
	Result   chan error
	Response chan interface{}
}

type AppendTranscriptPayload struct {
	SessionID string
	Entries   []TranscriptEntry
}

type ReadTranscriptPayload struct {
	SessionID string
	Limit     int // 0 = all
}

type ResetTranscriptPayload struct {
	SessionID string
}

type GetSessionPayload struct {
	SessionID string
}

type SaveSessionPayload struct {
	Session SessionMeta
}

type UpsertVectorPayload struct {
	Collection string
	ID         string
	Vector     []float32
	Metadata   map[string]string
	Content    string
}

type SearchVectorsPayload struct {
	Collection string
	Vector     []float32
	Limit      int
	Where      map[string]string
}

type CountVectorsPayload struct {
	Collection string
}

// Worker owns the data directory. Every mutation runs on its single loop
// goroutine; callers use the synchronous wrappers below.
type Worker struct {
	dataDir                  string
	inbox                    chan Request
	fileLock                 *FileLock
	quit                     chan struct{}
	stopped                  chan struct{}
	stopOnce                 sync.Once
	started                  stdatomic.Bool
	wg                       sync.WaitGroup
	sessionIndex             *SessionIndex
	vectorDB                 *chromem.DB
	running                  stdatomic.Bool
	transcriptRotateMaxBytes int64
}

func NewWorker(cfg config.StoreConfig) (*Worker, error) {
	dataDir, err := ResolveDataDir(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	for _, d := range []string{dataDir, filepath.Join(dataDir, transcriptsDir), filepath.Join(dataDir, vectorsDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", d, err)
		}
	}

	lockTimeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse store lock timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return nil, fmt.Errorf("parse store lock retry: %w", err)
	}
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = config.DefaultStoreInboxSize
	}
	rotateMax := cfg.TranscriptRotateMaxBytes
	if rotateMax <= 0 {
		rotateMax = config.DefaultStoreTranscriptRotateMaxBytes
	}

	fileLock, err := NewFileLock(dataDir, FileLockConfig{LockTimeout: lockTimeout, LockRetry: lockRetry})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	index := &SessionIndex{Sessions: make(map[string]SessionMeta)}
	if data, err := os.ReadFile(sessionIndexPath(dataDir)); err == nil {
		if err := json.Unmarshal(data, index); err != nil {
			slog.Warn("Failed to parse session index, starting fresh", "error", err)
			index = &SessionIndex{Sessions: make(map[string]SessionMeta)}
		}
		if index.Sessions == nil {
			index.Sessions = make(map[string]SessionMeta)
		}
	}

	vectorDB, err := chromem.NewPersistentDB(filepath.Join(dataDir, vectorsDir), false)
	if err != nil {
		fileLock.Unlock()
		return nil, fmt.Errorf("failed to init vector db: %w", err)
	}

	return &Worker{
		dataDir:                  dataDir,
		inbox:                    make(chan Request, inboxSize),
		fileLock:                 fileLock,
		quit:                     make(chan struct{}),
		stopped:                  make(chan struct{}),
		sessionIndex:             index,
		vectorDB:                 vectorDB,
		transcriptRotateMaxBytes: rotateMax,
	}, nil
}

func (w *Worker) DataDir() string {
	return w.dataDir
}

func (w *Worker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	w.wg.Add(1)
	go w.loop()
}

func (w *Worker) loop() {
	slog.Debug("Store worker started", "data_dir", w.dataDir)
	w.running.Store(true)
	defer func() {
		w.running.Store(false)
		close(w.stopped)
		w.wg.Done()
	}()

	for {
		select {
		case req := <-w.inbox:
			w.serve(req)
		case <-w.quit:
			// finish what was already queued
			for {
				select {
				case req := <-w.inbox:
					w.serve(req)
				default:
					slog.Debug("Store worker stopping")
					return
				}
			}
		}
	}
}

func (w *Worker) serve(req Request) {
	err := w.handle(req)
	if req.Result != nil {
		req.Result <- err
	}
}

func (w *Worker) handle(req Request) error {
	switch req.Op {
	case OpAppendTranscript:
		p, ok := req.Payload.(AppendTranscriptPayload)
		if !ok {
			return fmt.Errorf("invalid payload for AppendTranscript")
		}
		return w.appendTranscript(p.SessionID, p.Entries)
	case OpReadTranscript:
		p, ok := req.Payload.(ReadTranscriptPayload)
		if !ok {
			return fmt.Errorf("invalid payload for ReadTranscript")
		}
		entries, err := w.readTranscript(p.SessionID, p.Limit)
		respond(req, entries)
		return err
	case OpResetTranscript:
		p, ok := req.Payload.(ResetTranscriptPayload)
		if !ok {
			return fmt.Errorf("invalid payload for ResetTranscript")
		}
		return w.resetTranscript(p.SessionID)
	case OpGetSession:
		p, ok := req.Payload.(GetSessionPayload)
		if !ok {
			return fmt.Errorf("invalid payload for GetSession")
		}
		if sess, ok := w.sessionIndex.Sessions[p.SessionID]; ok {
			respond(req, &sess)
		} else {
			respond(req, (*SessionMeta)(nil))
		}
		return nil
	case OpSaveSession:
		p, ok := req.Payload.(SaveSessionPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SaveSession")
		}
		w.sessionIndex.Sessions[p.Session.ID] = p.Session
		return w.saveSessionIndex()
	case OpListSessions:
		respond(req, w.listSessions())
		return nil
	case OpUpsertVector:
		p, ok := req.Payload.(UpsertVectorPayload)
		if !ok {
			return fmt.Errorf("invalid payload for UpsertVector")
		}
		return w.upsertVector(p)
	case OpSearchVectors:
		p, ok := req.Payload.(SearchVectorsPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SearchVectors")
		}
		res, err := w.searchVectors(p)
		respond(req, res)
		return err
	case OpCountVectors:
		p, ok := req.Payload.(CountVectorsPayload)
		if !ok {
			return fmt.Errorf("invalid payload for CountVectors")
		}
		count := 0
		if col := w.vectorDB.GetCollection(p.Collection, nil); col != nil {
			count = col.Count()
		}
		respond(req, count)
		return nil
	default:
		return fmt.Errorf("unknown operation: %d", req.Op)
	}
}

func respond(req Request, v interface{}) {
	if req.Response != nil {
		req.Response <- v
	}
}

func (w *Worker) appendTranscript(sessionID string, entries []TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	path := TranscriptPath(w.dataDir, sessionID)

	if err := w.checkAndRotate(sessionID, path); err != nil {
		slog.Warn("Failed to rotate transcript", "session", sessionID, "error", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode transcript entry: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}
	return f.Sync()
}

func (w *Worker) readTranscript(sessionID string, limit int) ([]TranscriptEntry, error) {
	f, err := os.Open(TranscriptPath(w.dataDir, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []TranscriptEntry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	entries := []TranscriptEntry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e TranscriptEntry
		if err := json.Unmarshal(line, &e); err != nil {
			slog.Warn("Skipping malformed transcript line", "session", sessionID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:], nil
	}
	return entries, nil
}

func (w *Worker) resetTranscript(sessionID string) error {
	if err := os.Remove(TranscriptPath(w.dataDir, sessionID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if _, ok := w.sessionIndex.Sessions[sessionID]; !ok {
		return nil
	}
	delete(w.sessionIndex.Sessions, sessionID)
	return w.saveSessionIndex()
}

func (w *Worker) listSessions() []SessionMeta {
	sessions := make([]SessionMeta, 0, len(w.sessionIndex.Sessions))
	for _, s := range w.sessionIndex.Sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions
}

func (w *Worker) upsertVector(p UpsertVectorPayload) error {
	// embeddings are always supplied by the caller
	col, err := w.vectorDB.GetOrCreateCollection(p.Collection, nil, nil)
	if err != nil {
		return err
	}
	return col.AddDocuments(context.Background(), []chromem.Document{{
		ID:        p.ID,
		Metadata:  p.Metadata,
		Embedding: p.Vector,
		Content:   p.Content,
	}}, 1)
}

func (w *Worker) searchVectors(p SearchVectorsPayload) ([]VectorResult, error) {
	col := w.vectorDB.GetCollection(p.Collection, nil)
	if col == nil || p.Limit <= 0 {
		return []VectorResult{}, nil
	}

	// chromem rejects nResults above the collection size
	n := p.Limit
	if count := col.Count(); n > count {
		n = count
	}
	if n == 0 {
		return []VectorResult{}, nil
	}

	docs, err := col.QueryEmbedding(context.Background(), p.Vector, n, p.Where, nil)
	if err != nil {
		return nil, err
	}

	results := make([]VectorResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, VectorResult{
			ID:       doc.ID,
			Score:    doc.Similarity,
			Metadata: doc.Metadata,
			Content:  doc.Content,
		})
	}
	return results, nil
}

func (w *Worker) saveSessionIndex() error {
	data, err := json.MarshalIndent(w.sessionIndex, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(sessionIndexPath(w.dataDir), bytes.NewReader(data))
}

func (w *Worker) checkAndRotate(sessionID, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < w.transcriptRotateMaxBytes {
		return nil
	}

	slog.Info("Rotating transcript", "session", sessionID, "size", info.Size())
	backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102150405.000000000"))
	if err := os.Rename(path, backupPath); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

// --- synchronous API ---

func (w *Worker) call(op Operation, payload interface{}, wantResponse bool) (interface{}, error) {
	req := Request{Op: op, Payload: payload, Result: make(chan error, 1)}
	if wantResponse {
		req.Response = make(chan interface{}, 1)
	}

	select {
	case w.inbox <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}

	select {
	case err := <-req.Result:
		if err != nil {
			return nil, err
		}
	case <-w.stopped:
		select {
		case err := <-req.Result:
			if err != nil {
				return nil, err
			}
		default:
			// queued after the final drain
			return nil, ErrWorkerStopped
		}
	}

	if !wantResponse {
		return nil, nil
	}
	return <-req.Response, nil
}

func (w *Worker) AppendTranscript(sessionID string, entries ...TranscriptEntry) error {
	_, err := w.call(OpAppendTranscript, AppendTranscriptPayload{SessionID: sessionID, Entries: entries}, false)
	return err
}

func (w *Worker) ReadTranscript(sessionID string, limit int) ([]TranscriptEntry, error) {
	val, err := w.call(OpReadTranscript, ReadTranscriptPayload{SessionID: sessionID, Limit: limit}, true)
	if err != nil {
		return nil, err
	}
	return val.([]TranscriptEntry), nil
}

func (w *Worker) ResetTranscript(sessionID string) error {
	_, err := w.call(OpResetTranscript, ResetTranscriptPayload{SessionID: sessionID}, false)
	return err
}

// GetSession returns nil when the session is unknown.
func (w *Worker) GetSession(id string) (*SessionMeta, error) {
	val, err := w.call(OpGetSession, GetSessionPayload{SessionID: id}, true)
	if err != nil {
		return nil, err
	}
	return val.(*SessionMeta), nil
}

func (w *Worker) SaveSession(session SessionMeta) error {
	_, err := w.call(OpSaveSession, SaveSessionPayload{Session: session}, false)
	return err
}

// ListSessions returns the indexed sessions, most recently updated first.
func (w *Worker) ListSessions() ([]SessionMeta, error) {
	val, err := w.call(OpListSessions, nil, true)
	if err != nil {
		return nil, err
	}
	return val.([]SessionMeta), nil
}

func (w *Worker) UpsertVector(collection, id string, vector []float32, metadata map[string]string, content string) error {
	_, err := w.call(OpUpsertVector, UpsertVectorPayload{
		Collection: collection,
		ID:         id,
		Vector:     vector,
		Metadata:   metadata,
		Content:    content,
	}, false)
	return err
}

// SearchVectors returns up to limit nearest documents. where filters on
// exact metadata matches and may be nil.
func (w *Worker) SearchVectors(collection string, vector []float32, limit int, where map[string]string) ([]VectorResult, error) {
	val, err := w.call(OpSearchVectors, SearchVectorsPayload{
		Collection: collection,
		Vector:     vector,
		Limit:      limit,
		Where:      where,
	}, true)
	if err != nil {
		return nil, err
	}
	return val.([]VectorResult), nil
}

func (w *Worker) CountVectors(collection string) (int, error) {
	val, err := w.call(OpCountVectors, CountVectorsPayload{Collection: collection}, true)
	if err != nil {
		return 0, err
	}
	return val.(int), nil
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		slog.Debug("Store worker stop called", "data_dir", w.dataDir, "lock_held", w.fileLock.IsLocked())
		close(w.quit)
		if w.started.CompareAndSwap(false, true) {
			close(w.stopped)
		}
		w.wg.Wait()
		w.fileLock.Unlock()
	})
}

func (w *Worker) IsLockHeld() bool {
	return w.fileLock.IsLocked()
}

func (w *Worker) IsRunning() bool {
	return w.fileLock.IsLocked() && w.running.Load()
}
