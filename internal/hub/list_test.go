package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"Parley/internal/cache"
	"Parley/internal/event"
	"Parley/internal/model"
	"Parley/internal/presence"
)

func storedMessage(sender, receiver, body string, at time.Time) model.Message {
	return model.Message{
		ID:        primitive.NewObjectID(),
		RoomID:    "r1",
		Sender:    sender,
		Receiver:  receiver,
		Body:      body,
		Timestamp: at,
	}
}

func TestMessageListReversesToAscending(t *testing.T) {
	env := newDispatchEnv()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// repository order is newest first
	env.messages.pageMsgs = []model.Message{
		storedMessage("alice@x.com", "bob@x.com", "third", base.Add(2*time.Minute)),
		storedMessage("bob@x.com", "alice@x.com", "second", base.Add(time.Minute)),
		storedMessage("alice@x.com", "bob@x.com", "first", base),
	}
	env.messages.pageTotal = 3
	s := &fakeSession{email: "alice@x.com"}

	raw := envelope(t, event.SourceMessageList, event.HistoryPayload{RoomID: "r1", PageSize: 20})
	env.d.Dispatch(context.Background(), s, raw)

	var decoded struct {
		Source string            `json:"source"`
		Data   event.HistoryData `json:"data"`
	}
	if err := json.Unmarshal(s.frames[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Source != event.SourceMessageList {
		t.Errorf("source = %q", decoded.Source)
	}

	got := make([]string, len(decoded.Data.Messages))
	for i, m := range decoded.Data.Messages {
		got[i] = m.Message
	}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if decoded.Data.HasMore {
		t.Error("has_more = true for a complete page")
	}
}

func TestMessageListHasMore(t *testing.T) {
	env := newDispatchEnv()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env.messages.pageMsgs = []model.Message{
		storedMessage("alice@x.com", "bob@x.com", "m2", base.Add(time.Minute)),
		storedMessage("alice@x.com", "bob@x.com", "m1", base),
	}
	env.messages.pageTotal = 7
	s := &fakeSession{email: "alice@x.com"}

	raw := envelope(t, event.SourceMessageList, event.HistoryPayload{RoomID: "r1", Page: 0, PageSize: 2})
	env.d.Dispatch(context.Background(), s, raw)

	if env.messages.pageSkip != 0 || env.messages.pageLimit != 2 {
		t.Errorf("skip/limit = %d/%d", env.messages.pageSkip, env.messages.pageLimit)
	}

	var decoded struct {
		Data event.HistoryData `json:"data"`
	}
	if err := json.Unmarshal(s.frames[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Data.HasMore {
		t.Error("has_more = false with 7 total and page size 2")
	}
	if decoded.Data.Total != 7 {
		t.Errorf("total = %d", decoded.Data.Total)
	}
}

func TestMessageListCachesAndServesVerbatim(t *testing.T) {
	env := newDispatchEnv()
	env.messages.pageMsgs = []model.Message{
		storedMessage("alice@x.com", "bob@x.com", "hello", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	env.messages.pageTotal = 1
	s := &fakeSession{email: "alice@x.com"}

	raw := envelope(t, event.SourceMessageList, event.HistoryPayload{RoomID: "r1"})
	env.d.Dispatch(context.Background(), s, raw)

	key := cache.MessageListKey("alice@x.com", "r1", 0, defaultPageSize)
	cached, ok := env.cache.store[key]
	if !ok {
		t.Fatal("response was not cached")
	}
	if env.cache.ttls[key] != cache.MessageListTTL {
		t.Errorf("ttl = %v, want %v", env.cache.ttls[key], cache.MessageListTTL)
	}
	if string(cached) != string(s.frames[0]) {
		t.Error("cached body differs from the served frame")
	}

	// second call must serve the cached bytes without touching the store
	env.messages.pageMsgs = nil
	env.messages.pageTotal = 0
	s2 := &fakeSession{email: "alice@x.com"}
	env.d.Dispatch(context.Background(), s2, raw)

	if string(s2.frames[0]) != string(cached) {
		t.Error("cache hit not byte-identical")
	}
}

func TestMessageListWithoutRoomFallsToUserList(t *testing.T) {
	env := newDispatchEnv()
	env.users.users = []model.User{{ID: 1, Email: "bob@x.com", Role: "member"}}
	env.users.total = 1
	s := &fakeSession{email: "alice@x.com"}

	raw := envelope(t, event.SourceMessageList, event.HistoryPayload{})
	env.d.Dispatch(context.Background(), s, raw)

	var decoded event.UserListFrame
	if err := json.Unmarshal(s.frames[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Source != event.SourceUserList {
		t.Errorf("source = %q, want %q", decoded.Source, event.SourceUserList)
	}
}

func TestUserListAssemblesDirectoryPage(t *testing.T) {
	env := newDispatchEnv()
	env.users.users = []model.User{
		{ID: 7, Email: "bob@x.com", Role: "member"},
		{ID: 9, Email: "carol@x.com", Role: "admin"},
	}
	env.users.total = 2
	env.messages.unreadCounts = map[string]int64{"bob@x.com": 3}
	env.rooms.roomMap = map[string]string{"bob@x.com": "r1"}
	env.presence.records["bob@x.com"] = presence.Record{
		Status:   presence.StatusOnline,
		LastSeen: "2025-06-01T11:00:00Z",
	}
	s := &fakeSession{email: "alice@x.com"}

	raw := []byte(`{"source":"user.list","page":1,"per_page":10}`)
	env.d.Dispatch(context.Background(), s, raw)

	var decoded event.UserListFrame
	if err := json.Unmarshal(s.frames[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Data) != 2 {
		t.Fatalf("entries = %d, want 2", len(decoded.Data))
	}

	bob := decoded.Data[0]
	if bob.ID != "7" || bob.IsStatus != presence.StatusOnline || bob.UnreadCount != 3 {
		t.Errorf("bob = %+v", bob)
	}
	if bob.RoomID == nil || *bob.RoomID != "r1" {
		t.Errorf("bob room = %v", bob.RoomID)
	}

	// no shared room and no presence record reads as offline with no room
	carol := decoded.Data[1]
	if carol.IsStatus != presence.StatusOffline || carol.RoomID != nil || carol.UnreadCount != 0 {
		t.Errorf("carol = %+v", carol)
	}

	if decoded.Pagination == nil {
		t.Fatal("pagination missing")
	}
	if decoded.Pagination.Total != 2 || decoded.Pagination.TotalPages != 1 {
		t.Errorf("pagination = %+v", decoded.Pagination)
	}

	key := cache.UserListKey("alice@x.com", 1, 10, "")
	if env.cache.ttls[key] != cache.UserListTTL {
		t.Errorf("ttl = %v, want %v", env.cache.ttls[key], cache.UserListTTL)
	}
}

func TestUserListWithoutPagination(t *testing.T) {
	env := newDispatchEnv()
	env.users.users = []model.User{{ID: 1, Email: "bob@x.com"}}
	env.users.total = 1
	s := &fakeSession{email: "alice@x.com"}

	raw := []byte(`{"source":"user.list","is_pagination":false}`)
	env.d.Dispatch(context.Background(), s, raw)

	var decoded event.UserListFrame
	if err := json.Unmarshal(s.frames[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Pagination != nil {
		t.Errorf("pagination = %+v, want none", decoded.Pagination)
	}
}
