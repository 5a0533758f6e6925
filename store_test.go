package msgproj

import (
	"errors"
	"reflect"
	"testing"
)

func TestMessageStore_getUpsertDelete(t *testing.T) {
	store := newMessageStore()

	if _, ok := store.Get("hello"); ok {
		t.Fatal("empty store returned a message")
	}

	store.Upsert("hello", &Message{Variants: []Variant{{LanguageTag: "en", Pattern: Text("Hi")}}})
	m, ok := store.Get("hello")
	if !ok {
		t.Fatal("message not found after Upsert")
	}
	if m.ID != "hello" {
		t.Errorf("stored id = %q, want %q", m.ID, "hello")
	}

	// Mutating the returned copy must not affect the store.
	m.SetVariant(Variant{LanguageTag: "de", Pattern: Text("Hallo")})
	again, _ := store.Get("hello")
	if len(again.Variants) != 1 {
		t.Errorf("store leaked a mutable reference")
	}

	if !store.Delete("hello") {
		t.Error("Delete returned false for present id")
	}
	if store.Delete("hello") {
		t.Error("Delete returned true for absent id")
	}
	if _, ok := store.Get("hello"); ok {
		t.Error("message still present after Delete")
	}
}

func TestMessageStore_createRejectsExisting(t *testing.T) {
	store := newMessageStore()
	if err := store.Create(&Message{ID: "hello"}); err != nil {
		t.Fatal(err)
	}
	err := store.Create(&Message{ID: "hello"})
	var exists *MessageExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("Create() error = %v, want MessageExistsError", err)
	}
}

func TestMessageStore_listing(t *testing.T) {
	store := newMessageStore()
	for _, id := range []string{"b", "a", "c"} {
		store.Upsert(id, &Message{})
	}
	if got := store.IncludedMessageIDs(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("IncludedMessageIDs() = %v", got)
	}
	all := store.GetAll()
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Errorf("GetAll() not ordered by id: %v", all)
	}
}

func TestMessageStore_subscription(t *testing.T) {
	store := newMessageStore()
	var events []StoreEvent
	token := store.Subscribe(func(ev StoreEvent) { events = append(events, ev) })

	store.Upsert("a", &Message{})
	store.Delete("a")

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Kind != MessageUpserted || events[0].ID != "a" || events[0].Message == nil {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Kind != MessageDeleted || events[1].Message != nil {
		t.Errorf("second event = %+v", events[1])
	}

	store.Unsubscribe(token)
	store.Upsert("b", &Message{})
	if len(events) != 2 {
		t.Error("subscriber called after Unsubscribe")
	}
}
