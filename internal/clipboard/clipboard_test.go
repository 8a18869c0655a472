package clipboard

import (
	"errors"
	"testing"
)

type fakeProvider struct {
	content Content
	getErr  error
	setErr  error
	setCall Content
}

func (f *fakeProvider) GetContent() (Content, error) {
	return f.content, f.getErr
}

func (f *fakeProvider) SetContent(c Content) error {
	f.setCall = c
	return f.setErr
}

func TestFromClientNormalizesAndForwards(t *testing.T) {
	p := &fakeProvider{}
	b := New(p, nil)

	// decomposed is "e" followed by a combining acute accent
	// (U+0301); NFC should fold it to the precomposed "\u00e9".
	decomposed := "cafe\u0301"
	if err := b.FromClient("text/plain", []byte(decomposed)); err != nil {
		t.Fatalf("FromClient: %v", err)
	}
	want := "caf\u00e9"
	if p.setCall.Text != want {
		t.Fatalf("SetContent got %q, want %q", p.setCall.Text, want)
	}
}

func TestFromRemotePushesNewValue(t *testing.T) {
	b := New(&fakeProvider{}, nil)
	var pushedMime string
	var pushedData []byte
	b.OnPushToClient(func(mimeType string, data []byte) error {
		pushedMime = mimeType
		pushedData = data
		return nil
	})

	if err := b.FromRemote(Content{Type: ContentTypeText, Text: "hello"}); err != nil {
		t.Fatalf("FromRemote: %v", err)
	}
	if pushedMime != "text/plain" || string(pushedData) != "hello" {
		t.Fatalf("push = %q %q", pushedMime, pushedData)
	}
}

func TestFromRemoteSkipsEchoOfClientOrigin(t *testing.T) {
	b := New(&fakeProvider{}, nil)
	pushed := false
	b.OnPushToClient(func(mimeType string, data []byte) error {
		pushed = true
		return nil
	})

	if err := b.FromClient("text/plain", []byte("round-trip")); err != nil {
		t.Fatalf("FromClient: %v", err)
	}
	if err := b.FromRemote(Content{Type: ContentTypeText, Text: "round-trip"}); err != nil {
		t.Fatalf("FromRemote: %v", err)
	}
	if pushed {
		t.Fatal("expected FromRemote to skip pushing a value that echoes the client's own update")
	}
}

func TestFromRemotePropagatesProviderlessPushError(t *testing.T) {
	b := New(&fakeProvider{}, nil)
	wantErr := errors.New("client gone")
	b.OnPushToClient(func(mimeType string, data []byte) error {
		return wantErr
	})
	if err := b.FromRemote(Content{Type: ContentTypeText, Text: "x"}); err != wantErr {
		t.Fatalf("FromRemote error = %v, want %v", err, wantErr)
	}
}

func TestRefreshForwardsProviderContent(t *testing.T) {
	p := &fakeProvider{content: Content{Type: ContentTypeText, Text: "polled"}}
	b := New(p, nil)
	var got string
	b.OnPushToClient(func(mimeType string, data []byte) error {
		got = string(data)
		return nil
	})
	if err := b.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got != "polled" {
		t.Fatalf("got %q", got)
	}
}

func TestRefreshPropagatesGetError(t *testing.T) {
	wantErr := errors.New("no display access")
	p := &fakeProvider{getErr: wantErr}
	b := New(p, nil)
	if err := b.Refresh(); err != wantErr {
		t.Fatalf("Refresh error = %v, want %v", err, wantErr)
	}
}
