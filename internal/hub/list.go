package hub

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"Parley/internal/cache"
	"Parley/internal/event"
	"Parley/internal/presence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultPerPage  = 10
)

// messageList serves one room's paginated history, oldest first. Without a
// room id it falls through to the user directory listing.
func (d *Dispatcher) messageList(ctx context.Context, s session, env *event.Envelope) {
	var p event.HistoryPayload
	_ = json.Unmarshal(env.Data, &p)

	if p.RoomID == "" {
		d.userList(ctx, s, env)
		return
	}

	page := p.Page
	if page < 0 {
		page = 0
	}
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	skip := page * pageSize

	key := cache.MessageListKey(s.Email(), p.RoomID, page, pageSize)
	if body, err := d.cache.Get(ctx, key); err == nil && body != nil {
		s.SendRaw(body)
		return
	}

	msgs, total, err := d.messages.Page(ctx, p.RoomID, s.Email(), int64(skip), int64(pageSize))
	if err != nil {
		d.logger.Error("message list failed",
			zap.String("room_id", p.RoomID),
			zap.Error(err),
		)
		s.SendError(event.ErrServerError, "Failed to fetch messages")
		return
	}

	// store order is newest first; display order is oldest first
	entries := make([]event.HistoryEntry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		entries = append(entries, historyEntry(&msgs[i]))
	}

	frame, err := event.Frame(event.SourceMessageList, event.HistoryData{
		Messages: entries,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasMore:  int64(skip+pageSize) < total,
	})
	if err != nil {
		s.SendError(event.ErrServerError, "Failed to fetch messages")
		return
	}

	if err := d.cache.Set(ctx, key, frame, cache.MessageListTTL); err != nil {
		d.logger.Warn("message list cache set failed", zap.Error(err))
	}
	s.SendRaw(frame)
}

// userList assembles one directory page with presence, unread counts and
// resolved direct-room ids, serving and refreshing the cached body.
func (d *Dispatcher) userList(ctx context.Context, s session, env *event.Envelope) {
	paginate := env.IsPagination == nil || *env.IsPagination
	page := env.Page
	if page < 1 {
		page = 1
	}
	perPage := env.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	search := strings.TrimSpace(env.Search)

	key := cache.UserListKey(s.Email(), page, perPage, search)
	if body, err := d.cache.Get(ctx, key); err == nil && body != nil {
		s.SendRaw(body)
		return
	}

	users, total, err := d.users.ListPage(ctx, s.Email(), search, page, perPage, paginate)
	if err != nil {
		d.logger.Error("user list failed", zap.Error(err))
		s.SendError(event.ErrServerError, "Failed to fetch users")
		return
	}

	emails := make([]string, len(users))
	for i, u := range users {
		emails[i] = u.Email
	}

	// the three collaborator reads are independent; gather them concurrently
	var (
		wg         sync.WaitGroup
		unread     map[string]int64
		roomMap    map[string]string
		records    map[string]presence.Record
		gatherErrs [3]error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		unread, gatherErrs[0] = d.messages.UnreadCountsFrom(ctx, s.Email(), emails)
	}()
	go func() {
		defer wg.Done()
		roomMap, gatherErrs[1] = d.rooms.DirectRoomsFor(ctx, s.Email())
	}()
	go func() {
		defer wg.Done()
		records, gatherErrs[2] = d.presence.GetMany(ctx, emails)
	}()
	wg.Wait()

	for _, err := range gatherErrs {
		if err != nil {
			d.logger.Error("user list gather failed", zap.Error(err))
			s.SendError(event.ErrServerError, "Failed to fetch users")
			return
		}
	}

	entries := make([]event.UserEntry, 0, len(users))
	for _, u := range users {
		rec, ok := records[u.Email]
		if !ok {
			rec = presence.Record{Status: presence.StatusOffline}
		}
		var lastSeen *string
		if rec.LastSeen != "" {
			ls := rec.LastSeen
			lastSeen = &ls
		}
		var roomID *string
		if id, ok := roomMap[u.Email]; ok {
			roomID = &id
		}
		entries = append(entries, event.UserEntry{
			ID:          strconv.FormatInt(u.ID, 10),
			Email:       u.Email,
			Role:        u.Role,
			IsStatus:    rec.Status,
			LastSeen:    lastSeen,
			UnreadCount: unread[u.Email],
			RoomID:      roomID,
		})
	}

	reply := event.UserListFrame{
		Source: event.SourceUserList,
		Data:   entries,
	}
	if paginate {
		reply.Pagination = &event.Pagination{
			Page:       page,
			PerPage:    perPage,
			Total:      total,
			TotalPages: (total + int64(perPage) - 1) / int64(perPage),
		}
	}

	frame, err := json.Marshal(reply)
	if err != nil {
		s.SendError(event.ErrServerError, "Failed to fetch users")
		return
	}

	if err := d.cache.Set(ctx, key, frame, cache.UserListTTL); err != nil {
		d.logger.Warn("user list cache set failed", zap.Error(err))
	}
	s.SendRaw(frame)
}
