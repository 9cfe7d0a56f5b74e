package mqttd

import "testing"

func TestSessionRegistryConnectFresh(t *testing.T) {
	r := NewSessionRegistry()
	res := r.Connect("c1", "1.2.3.4:1", true, 60, "", "", false, 0, false, "", "")
	if res.Rejected || res.SessionPresent {
		t.Fatalf("got %+v, want a fresh unrejected session", res)
	}
	if !res.Session.IsConnected() {
		t.Error("new session should be connected")
	}
}

func TestSessionRegistryRejectsTakeover(t *testing.T) {
	r := NewSessionRegistry()
	r.Connect("c1", "1.2.3.4:1", false, 60, "", "", false, 0, false, "", "")
	res := r.Connect("c1", "5.6.7.8:2", false, 60, "", "", false, 0, false, "", "")
	if !res.Rejected {
		t.Fatal("expected a second CONNECT for a still-connected client id to be rejected")
	}
}

func TestSessionRegistryCleanSessionDisconnectRemoves(t *testing.T) {
	r := NewSessionRegistry()
	r.Connect("c1", "1.2.3.4:1", true, 60, "", "", false, 0, false, "", "")
	r.Disconnect("c1")
	if _, ok := r.Lookup("c1"); ok {
		t.Error("expected clean_session disconnect to remove the session")
	}
}

func TestSessionRegistryPersistentSessionReuse(t *testing.T) {
	r := NewSessionRegistry()
	r.Connect("c1", "1.2.3.4:1", false, 60, "", "", false, 0, false, "", "")
	r.Disconnect("c1")
	if _, ok := r.Lookup("c1"); !ok {
		t.Fatal("expected clean_session=false session to survive disconnect")
	}
	res := r.Connect("c1", "5.6.7.8:2", false, 120, "", "", false, 0, false, "", "")
	if res.Rejected || !res.SessionPresent {
		t.Fatalf("got %+v, want a reused, present session", res)
	}
	if res.Session.RemoteAddr != "5.6.7.8:2" {
		t.Errorf("RemoteAddr = %q, want updated address", res.Session.RemoteAddr)
	}
}

func TestSessionRegistryCleanSessionAfterReconnectDropsState(t *testing.T) {
	r := NewSessionRegistry()
	r.Connect("c1", "1.2.3.4:1", false, 60, "", "", false, 0, false, "", "")
	r.Disconnect("c1")
	res := r.Connect("c1", "5.6.7.8:2", true, 60, "", "", false, 0, false, "", "")
	if res.Rejected || res.SessionPresent {
		t.Fatalf("got %+v, want a fresh session when clean_session is requested", res)
	}
}

func TestSessionWill(t *testing.T) {
	r := NewSessionRegistry()
	res := r.Connect("c1", "1.2.3.4:1", true, 60, "", "", true, 1, true, "a/b", "bye")
	topic, msg, qos, retain, armed := res.Session.Will()
	if !armed || topic != "a/b" || msg != "bye" || qos != 1 || !retain {
		t.Errorf("Will() = (%q, %q, %d, %v, %v), want armed a/b/bye/1/true", topic, msg, qos, retain, armed)
	}
}

func TestSessionRegistryCount(t *testing.T) {
	r := NewSessionRegistry()
	r.Connect("c1", "a", true, 60, "", "", false, 0, false, "", "")
	r.Connect("c2", "b", true, 60, "", "", false, 0, false, "", "")
	if got := r.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}
