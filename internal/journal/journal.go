// Package journal keeps an append-only, git-backed record of annotation
// actions (votes cast and retracted, flags, deletions). Each annotation gets
// one JSON-lines file; every append is committed, so the git history is the
// audit trail.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const entryVersion = "1"

type Action string

const (
	ActionCast    Action = "cast"
	ActionRetract Action = "retract"
	ActionFlag    Action = "flag"
	ActionDelete  Action = "delete"
)

// Entry is one journalled action.
type Entry struct {
	Version      string    `json:"version"`
	Action       Action    `json:"action"`
	AnnotationID string    `json:"annotationId"`
	UserID       string    `json:"userId"`
	Direction    string    `json:"direction,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

type Service struct {
	baseDir string
	initMu  sync.Mutex
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Append records one entry for its annotation and commits the change.
func (s *Service) Append(entry Entry) error {
	if entry.AnnotationID == "" {
		return errors.New("journal entry needs an annotation id")
	}
	entry.Version = entryVersion
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	repo, err := s.ensureRepo()
	if err != nil {
		return err
	}

	lock := s.fileLock(entry.AnnotationID)
	lock.Lock()
	defer lock.Unlock()

	name := journalFilename(entry.AnnotationID)
	path := filepath.Join(s.baseDir, name)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		file.Close()
		return fmt.Errorf("append journal entry: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close journal file: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Add(name); err != nil {
		return fmt.Errorf("git add journal: %w", err)
	}
	message := fmt.Sprintf("%s %s by %s", entry.Action, entry.AnnotationID, entry.UserID)
	if _, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "marginalia",
			Email: "journal@local.marginalia.dev",
			When:  entry.At,
		},
	}); err != nil {
		return fmt.Errorf("commit journal entry: %w", err)
	}
	return nil
}

// Replay reads every entry journalled for an annotation, oldest first. A
// missing journal is an empty history, not an error. Unparseable lines are
// skipped so one bad record cannot wedge an audit.
func (s *Service) Replay(annotationID string) ([]Entry, error) {
	lock := s.fileLock(annotationID)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(s.baseDir, journalFilename(annotationID))
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	entries := make([]Entry, 0)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}

func (s *Service) ensureRepo() (*git.Repository, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	repo, err := git.PlainOpen(s.baseDir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open journal repo: %w", err)
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	repo, err = git.PlainInit(s.baseDir, false)
	if err != nil {
		return nil, fmt.Errorf("init journal repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	readme := filepath.Join(s.baseDir, "README")
	if err := os.WriteFile(readme, []byte("Append-only annotation action journal.\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write journal readme: %w", err)
	}
	if _, err := worktree.Add("README"); err != nil {
		return nil, fmt.Errorf("git add readme: %w", err)
	}
	hash, err := worktree.Commit("Initialize journal", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "marginalia",
			Email: "journal@local.marginalia.dev",
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("commit journal init: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) fileLock(annotationID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[annotationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[annotationID] = lock
	}
	return lock
}

func journalFilename(annotationID string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, annotationID)
	return sanitized + ".journal"
}
