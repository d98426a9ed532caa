package command

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"matrixbot/internal/domain"
)

// fakeClient records outbound messages as "room|text" and routed images
// as "room|filename".
type fakeClient struct {
	mu       sync.Mutex
	userID   string
	messages []string
	images   []string
}

func (f *fakeClient) UserID() string {
	if f.userID == "" {
		return "@bot:example.org"
	}
	return f.userID
}

func (f *fakeClient) SendMessage(_ context.Context, roomID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, roomID+"|"+text)
	return fmt.Sprintf("$msg%d", len(f.messages)), nil
}

func (f *fakeClient) SendImage(_ context.Context, roomID, filename string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, roomID+"|"+filename)
	return fmt.Sprintf("$img%d", len(f.images)), nil
}

func (f *fakeClient) JoinRoom(context.Context, string) (string, error) { return "", nil }
func (f *fakeClient) JoinRoomByID(context.Context, string) error       { return nil }
func (f *fakeClient) DirectoryLookup(context.Context, string) (string, error) {
	return "", errors.New("no entry")
}
func (f *fakeClient) DownloadMedia(context.Context, string) ([]byte, error) { return nil, nil }

func (f *fakeClient) lastMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

// fakeIndex serves canned search and sample results.
type fakeIndex struct {
	searchResults []domain.IndexedMessage
	searchErr     error
	shouted       []domain.IndexedMessage
	shoutedErr    error

	lastQuery   string
	lastFilter  string
	lastExclude []string
}

func (f *fakeIndex) RoomIDForAlias(context.Context, string) (string, error) { return "", nil }

func (f *fakeIndex) SearchMessages(_ context.Context, query string, limit int) ([]domain.IndexedMessage, error) {
	f.lastQuery = query
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.searchResults) > limit {
		return f.searchResults[:limit], nil
	}
	return f.searchResults, nil
}

func (f *fakeIndex) SampleShouted(_ context.Context, senderFilter string, exclude []string, _ int) ([]domain.IndexedMessage, error) {
	f.lastFilter = senderFilter
	f.lastExclude = exclude
	return f.shouted, f.shoutedErr
}

// fakeResolver resolves via a fixed table; unknown inputs fail the way
// the real resolver does.
type fakeResolver struct {
	table map[string]string
	calls []string
}

func (f *fakeResolver) Resolve(_ context.Context, input string) (string, error) {
	f.calls = append(f.calls, input)
	if id, ok := f.table[input]; ok {
		return id, nil
	}
	return "", &domain.UnresolvedRoomError{Input: input}
}

// memMappings is an in-memory MappingStore.
type memMappings struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemMappings() *memMappings {
	return &memMappings{data: make(map[string]string)}
}

func (m *memMappings) Mapping(_ context.Context, source string) (*domain.ChannelMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.data[source]
	if !ok {
		return nil, nil
	}
	return &domain.ChannelMapping{SourceRoomID: source, TargetRoomID: target}, nil
}

func (m *memMappings) PutMapping(_ context.Context, source, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[source] = target
	return nil
}

func (m *memMappings) DeleteMapping(_ context.Context, source string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[source]
	delete(m.data, source)
	return ok, nil
}

// fakeRouter records routed images as "origin|filename" and keeps the bytes.
type fakeRouter struct {
	routed []string
	data   [][]byte
	err    error
}

func (f *fakeRouter) Route(_ context.Context, originRoom, filename string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.routed = append(f.routed, originRoom+"|"+filename)
	f.data = append(f.data, data)
	return nil
}

func newInvocation(client *fakeClient, index *fakeIndex, router *fakeRouter) *domain.Invocation {
	if client == nil {
		client = &fakeClient{}
	}
	if index == nil {
		index = &fakeIndex{}
	}
	if router == nil {
		router = &fakeRouter{}
	}
	return &domain.Invocation{
		Client:   client,
		Mappings: newMemMappings(),
		Index:    index,
		Resolver: &fakeResolver{},
		Images:   router,
		RoomID:   "!origin:x",
		SenderID: "@alice:x",
		LinkHost: "https://matrix.to",
	}
}
