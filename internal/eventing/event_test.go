package eventing

import (
	"errors"
	"testing"
)

const binaryStateNotify = `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">
<e:property>
<BinaryState>1</BinaryState>
</e:property>
</e:propertyset>`

func TestParseEventBody(t *testing.T) {
	props, err := ParseEventBody([]byte(binaryStateNotify))
	if err != nil {
		t.Fatalf("ParseEventBody() error = %v", err)
	}
	if props["BinaryState"] != "1" {
		t.Errorf("props[BinaryState] = %q, want \"1\"", props["BinaryState"])
	}
	if len(props) != 1 {
		t.Errorf("len(props) = %d, want 1", len(props))
	}
}

func TestParseEventBody_MultipleProperties(t *testing.T) {
	body := `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">
<e:property><BinaryState>0</BinaryState></e:property>
<e:property><Brightness>75</Brightness></e:property>
</e:propertyset>`

	props, err := ParseEventBody([]byte(body))
	if err != nil {
		t.Fatalf("ParseEventBody() error = %v", err)
	}
	if props["BinaryState"] != "0" || props["Brightness"] != "75" {
		t.Errorf("props = %v, want BinaryState=0 and Brightness=75", props)
	}
}

func TestParseEventBody_EmptyPropertySet(t *testing.T) {
	props, err := ParseEventBody([]byte(`<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0"></e:propertyset>`))
	if err != nil {
		t.Fatalf("ParseEventBody() error = %v", err)
	}
	if len(props) != 0 {
		t.Errorf("len(props) = %d, want 0", len(props))
	}
}

func TestParseEventBody_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not XML", "BinaryState=1"},
		{"wrong root", `<root><BinaryState>1</BinaryState></root>`},
		{"truncated", `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0"><e:property>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEventBody([]byte(tt.body))
			if err == nil {
				t.Fatal("ParseEventBody() error = nil, want MalformedEventError")
			}
			var malformed *MalformedEventError
			if !errors.As(err, &malformed) {
				t.Errorf("ParseEventBody() error = %T, want *MalformedEventError", err)
			}
		})
	}
}
