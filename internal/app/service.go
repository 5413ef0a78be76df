package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"marginalia/api/internal/auth"
	"marginalia/api/internal/authpw"
	"marginalia/api/internal/authz"
	"marginalia/api/internal/config"
	"marginalia/api/internal/email"
	"marginalia/api/internal/export"
	"marginalia/api/internal/journal"
	"marginalia/api/internal/search"
	"marginalia/api/internal/session"
	"marginalia/api/internal/store"
	"marginalia/api/internal/util"
	"marginalia/api/internal/votes"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type CreateAnnotationInput struct {
	URI         string             `json:"uri"`
	GroupID     string             `json:"group"`
	Text        string             `json:"text"`
	Tags        []string           `json:"tags"`
	Permissions *store.Permissions `json:"permissions"`
}

type UpdateAnnotationInput struct {
	Text string   `json:"text"`
	Tags []string `json:"tags"`
}

type ReplyInput struct {
	Text string   `json:"text"`
	Tags []string `json:"tags"`
}

type VoteInput struct {
	Direction string `json:"direction"`
}

type FlagInput struct {
	Reason string `json:"reason"`
}

const voteLockTTL = 10 * time.Second

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertAnnotation(context.Context, store.Annotation) error
	GetAnnotation(context.Context, string) (store.Annotation, error)
	ListAnnotationsByURI(context.Context, string, string) ([]store.Annotation, error)
	ListReplies(context.Context, string) ([]store.Annotation, error)
	ReplaceTags(context.Context, string, []string) error
	UpdateAnnotationText(context.Context, string, string, []string) error
	DeleteAnnotation(context.Context, string) error
	InsertFlag(context.Context, store.FlagRecord) error
	CountFlags(context.Context, string) (int, error)
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens and vote locks in Redis. When Redis is
// not configured the service falls back to Postgres refresh sessions and an
// in-process lock table.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	AcquireVoteLock(ctx context.Context, annotationID string, ttl time.Duration) (bool, error)
	ReleaseVoteLock(ctx context.Context, annotationID string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	email    *email.Service
	search   *search.Service
	journal  *journal.Service
	export   *export.Service
	mutator  votes.Mutator

	lockMu    sync.Mutex
	voteLocks map[string]time.Time
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	sessions *session.RedisStore,
	authService *authpw.Service,
	emailService *email.Service,
	searchService *search.Service,
	journalService *journal.Service,
	exportService *export.Service,
) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		authpw:    authService,
		email:     emailService,
		search:    searchService,
		journal:   journalService,
		export:    exportService,
		mutator:   votes.Mutator{Scheme: votes.ParseScheme(cfg.VoteScheme)},
		voteLocks: make(map[string]time.Time),
	}
	if sessions != nil {
		s.sessions = sessions
	}
	return s
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) EmailService() *email.Service {
	return s.email
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ClientFeatures reports the feature toggles clients adjust their UI to.
func (s *Service) ClientFeatures() map[string]bool {
	return map[string]bool{
		"flagging":     s.cfg.FlaggingEnabled,
		"sharing":      s.cfg.SharingEnabled,
		"displayNames": s.cfg.ClientDisplayNames,
		"atMentions":   s.cfg.AtMentions,
	}
}

// Bootstrap runs startup work that needs the full stack: rebuilding the
// search index from Postgres when Meilisearch is reachable.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

// --- sessions ---

func (s *Service) IssueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.saveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.lookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.revokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	if user.DisplayName == "" {
		if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
			user = full
		}
	}
	return s.IssueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.revokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) saveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if s.sessions != nil {
		return s.sessions.SaveRefreshSession(ctx, tokenHash, userID, expiresAt)
	}
	return s.store.SaveRefreshSession(ctx, tokenHash, userID, expiresAt)
}

func (s *Service) lookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if s.sessions != nil {
		return s.sessions.LookupRefreshSession(ctx, tokenHash)
	}
	return s.store.LookupRefreshSession(ctx, tokenHash)
}

func (s *Service) revokeRefreshSession(ctx context.Context, tokenHash string) error {
	if s.sessions != nil {
		return s.sessions.RevokeRefreshSession(ctx, tokenHash)
	}
	return s.store.RevokeRefreshSession(ctx, tokenHash)
}

// --- annotations ---

func (s *Service) authzFlags() authz.Flags {
	return authz.Flags{
		FlaggingEnabled: s.cfg.FlaggingEnabled,
		SharingEnabled:  s.cfg.SharingEnabled,
	}
}

// annotationView renders one annotation with its derived vote state and
// action set for the viewer. Vote markers never leak into the tag list, and
// vote-carrier replies are counted but not listed.
func (s *Service) annotationView(a store.Annotation, replies []store.Annotation, viewerID string) map[string]any {
	state := votes.Derive(a, replies, viewerID)
	decision := authz.Authorize(a.Permissions, a.UserID, viewerID, s.authzFlags())

	shown := make([]map[string]any, 0)
	for _, reply := range replies {
		if votes.HasMarker(reply.Tags) {
			continue
		}
		if !authz.CanRead(reply.Permissions, viewerID) {
			continue
		}
		replyDecision := authz.Authorize(reply.Permissions, reply.UserID, viewerID, s.authzFlags())
		shown = append(shown, map[string]any{
			"id":         reply.ID,
			"userId":     reply.UserID,
			"text":       reply.Text,
			"tags":       votes.Strip(reply.Tags),
			"references": reply.Refs,
			"createdAt":  reply.CreatedAt,
			"actions":    replyDecision,
		})
	}

	return map[string]any{
		"id":          a.ID,
		"userId":      a.UserID,
		"groupId":     a.GroupID,
		"uri":         a.URI,
		"text":        a.Text,
		"tags":        votes.Strip(a.Tags),
		"references":  a.Refs,
		"permissions": a.Permissions,
		"createdAt":   a.CreatedAt,
		"updatedAt":   a.UpdatedAt,
		"votes":       state,
		"actions":     decision,
		"replies":     shown,
	}
}

func (s *Service) ListAnnotations(ctx context.Context, uri, groupID, viewerID string) (map[string]any, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION", "uri query parameter is required", nil)
	}

	annotations, err := s.store.ListAnnotationsByURI(ctx, uri, groupID)
	if err != nil {
		return nil, err
	}

	repliesByParent := make(map[string][]store.Annotation)
	var topLevel []store.Annotation
	for _, a := range annotations {
		if a.IsReply() {
			repliesByParent[a.ParentID()] = append(repliesByParent[a.ParentID()], a)
			continue
		}
		topLevel = append(topLevel, a)
	}

	items := make([]map[string]any, 0, len(topLevel))
	for _, a := range topLevel {
		if !authz.CanRead(a.Permissions, viewerID) {
			continue
		}
		items = append(items, s.annotationView(a, repliesByParent[a.ID], viewerID))
	}

	return map[string]any{
		"uri":         uri,
		"annotations": items,
		"total":       len(items),
	}, nil
}

func (s *Service) CreateAnnotation(ctx context.Context, viewer Session, input CreateAnnotationInput) (map[string]any, error) {
	if viewer.UserID == "" {
		return nil, domainError(http.StatusUnauthorized, "LOGIN_REQUIRED", "Sign in to annotate", nil)
	}
	if strings.TrimSpace(input.URI) == "" || strings.TrimSpace(input.Text) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION", "uri and text are required", nil)
	}
	if err := rejectReservedTags(input.Tags); err != nil {
		return nil, err
	}

	now := time.Now()
	a := store.Annotation{
		ID:          util.NewID("ann"),
		UserID:      viewer.UserID,
		GroupID:     input.GroupID,
		URI:         input.URI,
		Text:        input.Text,
		Tags:        input.Tags,
		Permissions: defaultPermissions(viewer.UserID, input.Permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.InsertAnnotation(ctx, a); err != nil {
		return nil, err
	}
	s.indexAnnotation(a)

	return s.annotationView(a, nil, viewer.UserID), nil
}

func (s *Service) GetAnnotation(ctx context.Context, id, viewerID string) (map[string]any, error) {
	a, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(a.Permissions, viewerID) {
		// Unreadable annotations are indistinguishable from missing ones.
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	replies, err := s.store.ListReplies(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return s.annotationView(a, replies, viewerID), nil
}

func (s *Service) UpdateAnnotation(ctx context.Context, id string, viewer Session, input UpdateAnnotationInput) (map[string]any, error) {
	if viewer.UserID == "" {
		return nil, domainError(http.StatusUnauthorized, "LOGIN_REQUIRED", "Sign in to edit", nil)
	}
	a, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return nil, err
	}
	decision := authz.Authorize(a.Permissions, a.UserID, viewer.UserID, s.authzFlags())
	if !decision.CanEdit {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You may not edit this annotation", nil)
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION", "text is required", nil)
	}
	if err := rejectReservedTags(input.Tags); err != nil {
		return nil, err
	}

	// Edits replace the topical tags but must not disturb recorded votes.
	tags := append([]string(nil), input.Tags...)
	for _, tag := range a.Tags {
		if votes.IsMarker(tag) || votes.IsReplyMarker(tag) {
			tags = append(tags, tag)
		}
	}

	if err := s.store.UpdateAnnotationText(ctx, id, input.Text, tags); err != nil {
		return nil, err
	}

	a.Text = input.Text
	a.Tags = tags
	s.indexAnnotation(a)

	replies, err := s.store.ListReplies(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return s.annotationView(a, replies, viewer.UserID), nil
}

func (s *Service) DeleteAnnotation(ctx context.Context, id string, viewer Session) error {
	if viewer.UserID == "" {
		return domainError(http.StatusUnauthorized, "LOGIN_REQUIRED", "Sign in to delete", nil)
	}
	a, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return err
	}
	decision := authz.Authorize(a.Permissions, a.UserID, viewer.UserID, s.authzFlags())
	if !decision.CanDelete {
		return domainError(http.StatusForbidden, "FORBIDDEN", "You may not delete this annotation", nil)
	}

	if err := s.store.DeleteAnnotation(ctx, id); err != nil {
		return err
	}
	s.journalAppend(journal.Entry{
		Action:       journal.ActionDelete,
		AnnotationID: id,
		UserID:       viewer.UserID,
	})
	if s.search != nil {
		s.search.DeleteAnnotation(id)
	}
	return nil
}

func (s *Service) Reply(ctx context.Context, parentID string, viewer Session, input ReplyInput) (map[string]any, error) {
	if viewer.UserID == "" {
		return nil, domainError(http.StatusUnauthorized, "LOGIN_REQUIRED", "Sign in to reply", nil)
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION", "text is required", nil)
	}
	if err := rejectReservedTags(input.Tags); err != nil {
		return nil, err
	}

	parent, err := s.store.GetAnnotation(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(parent.Permissions, viewer.UserID) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	now := time.Now()
	reply := store.Annotation{
		ID:      util.NewID("ann"),
		UserID:  viewer.UserID,
		GroupID: parent.GroupID,
		URI:     parent.URI,
		Text:    input.Text,
		Tags:    input.Tags,
		Refs:    append(append([]string(nil), parent.Refs...), parent.ID),
		Permissions: store.Permissions{
			Read:   append([]string(nil), parent.Permissions.Read...),
			Update: []string{viewer.UserID},
			Delete: []string{viewer.UserID},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.InsertAnnotation(ctx, reply); err != nil {
		return nil, err
	}
	s.indexAnnotation(reply)

	return s.annotationView(reply, nil, viewer.UserID), nil
}

// Vote applies one vote request under a per-annotation single-flight lock.
// The plan is computed against a fresh snapshot and executed op by op; a
// persistence failure aborts without any local bookkeeping to roll back.
func (s *Service) Vote(ctx context.Context, id string, viewer Session, input VoteInput) (map[string]any, error) {
	if viewer.UserID == "" {
		return nil, domainError(http.StatusUnauthorized, "LOGIN_REQUIRED", "Sign in to vote", nil)
	}
	direction := votes.Direction(input.Direction)
	if direction != votes.Like && direction != votes.Dislike {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_DIRECTION", "direction must be like or dislike", nil)
	}

	acquired, err := s.acquireVoteLock(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, domainError(http.StatusConflict, "VOTE_IN_FLIGHT", "A vote on this annotation is still being processed", nil)
	}
	defer s.releaseVoteLock(ctx, id)

	target, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(target.Permissions, viewer.UserID) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if !votes.EligibleTarget(target) {
		return nil, domainError(http.StatusUnprocessableEntity, "NOT_VOTABLE", "This annotation cannot receive votes", nil)
	}

	candidates, err := s.store.ListReplies(ctx, target.ID)
	if err != nil {
		return nil, err
	}

	state := votes.Derive(target, candidates, viewer.UserID)
	plan := s.mutator.Apply(target, candidates, state, direction, viewer.UserID, time.Now())

	if !plan.Noop() {
		if err := s.executePlan(ctx, target.ID, plan); err != nil {
			return nil, err
		}
		action := journal.ActionCast
		if state.ViewerVote == direction {
			action = journal.ActionRetract
		}
		s.journalAppend(journal.Entry{
			Action:       action,
			AnnotationID: target.ID,
			UserID:       viewer.UserID,
			Direction:    string(direction),
		})
	}

	// Reload so the response reflects persisted state, not the plan.
	updated, err := s.store.GetAnnotation(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	replies, err := s.store.ListReplies(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	return s.annotationView(updated, replies, viewer.UserID), nil
}

func (s *Service) executePlan(ctx context.Context, targetID string, plan votes.Plan) error {
	for _, op := range plan.Ops {
		switch op.Kind {
		case votes.OpUpdateTags:
			if err := s.store.ReplaceTags(ctx, targetID, op.Tags); err != nil {
				return err
			}
		case votes.OpCreateReply:
			reply := op.Reply
			reply.ID = util.NewID("ann")
			if err := s.store.InsertAnnotation(ctx, reply); err != nil {
				return err
			}
		case votes.OpDeleteReply:
			if err := s.store.DeleteAnnotation(ctx, op.DeleteID); err != nil {
				return err
			}
		}
	}
	return nil
}

// AnnotationHistory replays the journalled actions for an annotation. Only
// someone allowed to edit the annotation may audit it; for everyone else the
// history is as invisible as the journal itself.
func (s *Service) AnnotationHistory(ctx context.Context, id string, viewer Session) (map[string]any, error) {
	if viewer.UserID == "" {
		return nil, domainError(http.StatusUnauthorized, "LOGIN_REQUIRED", "Sign in to view annotation history", nil)
	}
	a, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(a.Permissions, viewer.UserID) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	decision := authz.Authorize(a.Permissions, a.UserID, viewer.UserID, s.authzFlags())
	if !decision.CanEdit {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You may not view this annotation's history", nil)
	}

	entries := []journal.Entry{}
	if s.journal != nil {
		entries, err = s.journal.Replay(id)
		if err != nil {
			return nil, err
		}
	}
	return map[string]any{
		"annotationId": id,
		"entries":      entries,
	}, nil
}

func (s *Service) Flag(ctx context.Context, id string, viewer Session, input FlagInput) (map[string]any, error) {
	if viewer.UserID == "" {
		return nil, domainError(http.StatusUnauthorized, "LOGIN_REQUIRED", "Sign in to report", nil)
	}
	a, err := s.store.GetAnnotation(ctx, id)
	if err != nil {
		return nil, err
	}
	decision := authz.Authorize(a.Permissions, a.UserID, viewer.UserID, s.authzFlags())
	if !decision.CanFlag {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You may not report this annotation", nil)
	}

	if err := s.store.InsertFlag(ctx, store.FlagRecord{
		ID:           util.NewID("flag"),
		AnnotationID: a.ID,
		UserID:       viewer.UserID,
		Reason:       input.Reason,
		CreatedAt:    time.Now(),
	}); err != nil {
		return nil, err
	}

	count, err := s.store.CountFlags(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	s.journalAppend(journal.Entry{
		Action:       journal.ActionFlag,
		AnnotationID: a.ID,
		UserID:       viewer.UserID,
		Reason:       input.Reason,
	})
	s.notifyModeration(a, viewer, input.Reason, count)

	return map[string]any{"flagged": true, "flagCount": count}, nil
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	result, err := s.export.Export(ctx, req)
	if errors.Is(err, export.ErrNothingToExport) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "No annotations for that document", nil)
	}
	return result, err
}

// --- helpers ---

func (s *Service) acquireVoteLock(ctx context.Context, annotationID string) (bool, error) {
	if s.sessions != nil {
		return s.sessions.AcquireVoteLock(ctx, annotationID, voteLockTTL)
	}
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if held, ok := s.voteLocks[annotationID]; ok && time.Since(held) < voteLockTTL {
		return false, nil
	}
	s.voteLocks[annotationID] = time.Now()
	return true, nil
}

func (s *Service) releaseVoteLock(ctx context.Context, annotationID string) {
	if s.sessions != nil {
		if err := s.sessions.ReleaseVoteLock(ctx, annotationID); err != nil {
			log.Printf("app: release vote lock %s: %v", annotationID, err)
		}
		return
	}
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	delete(s.voteLocks, annotationID)
}

func (s *Service) journalAppend(entry journal.Entry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(entry); err != nil {
		log.Printf("app: journal %s %s: %v", entry.Action, entry.AnnotationID, err)
	}
}

func (s *Service) indexAnnotation(a store.Annotation) {
	if s.search == nil {
		return
	}
	s.search.IndexAnnotation(search.AnnotationRecord{
		ID:      a.ID,
		Body:    a.Text,
		Tags:    votes.Strip(a.Tags),
		URI:     a.URI,
		GroupID: a.GroupID,
		Author:  a.UserID,
	})
}

func (s *Service) notifyModeration(a store.Annotation, viewer Session, reason string, count int) {
	if s.email == nil || !s.email.IsConfigured() || s.cfg.ModerationEmail == "" {
		return
	}
	go func() {
		if err := s.email.SendFlagNotification(s.cfg.ModerationEmail, a.ID, a.URI, viewer.UserName, reason, count); err != nil {
			log.Printf("app: flag notification for %s: %v", a.ID, err)
		}
	}()
}

func rejectReservedTags(tags []string) error {
	var reserved []string
	for _, tag := range tags {
		if votes.Reserved(tag) {
			reserved = append(reserved, tag)
		}
	}
	if len(reserved) > 0 {
		return domainError(http.StatusUnprocessableEntity, "RESERVED_TAG", "Tags under the vote: namespace are reserved", map[string]any{"tags": reserved})
	}
	return nil
}

func defaultPermissions(userID string, provided *store.Permissions) store.Permissions {
	if provided != nil {
		perms := *provided
		if len(perms.Read) == 0 {
			perms.Read = []string{authz.WorldGroup}
		}
		if len(perms.Update) == 0 {
			perms.Update = []string{userID}
		}
		if len(perms.Delete) == 0 {
			perms.Delete = []string{userID}
		}
		return perms
	}
	return store.Permissions{
		Read:   []string{authz.WorldGroup},
		Update: []string{userID},
		Delete: []string{userID},
	}
}
