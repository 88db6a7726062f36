package fus

import (
	"strings"
	"testing"
)

func TestMarshalEnvelopeShape(t *testing.T) {
	got := marshalEnvelope(putFields{{"A", "1"}, {"B", "two"}})
	want := "<FUSMsg><FUSHdr><ProtoVer>1.0</ProtoVer></FUSHdr>" +
		"<FUSBody><Put><A><Data>1</Data></A><B><Data>two</Data></B></Put></FUSBody></FUSMsg>"
	if got != want {
		t.Errorf("envelope = %s, want %s", got, want)
	}
}

func TestBinaryInformBody(t *testing.T) {
	body := binaryInformBody("FWVER", "SM-G960F", "BTU", "354399110012349", "LOGIC")

	for _, fragment := range []string{
		"<DEVICE_FW_VERSION><Data>FWVER</Data></DEVICE_FW_VERSION>",
		"<DEVICE_MODEL_NAME><Data>SM-G960F</Data></DEVICE_MODEL_NAME>",
		"<DEVICE_LOCAL_CODE><Data>BTU</Data></DEVICE_LOCAL_CODE>",
		"<DEVICE_IMEI_PUSH><Data>354399110012349</Data></DEVICE_IMEI_PUSH>",
		"<LOGIC_CHECK><Data>LOGIC</Data></LOGIC_CHECK>",
		"<CLIENT_PRODUCT><Data>Smart Switch</Data></CLIENT_PRODUCT>",
		"<ACCESS_MODE><Data>2</Data></ACCESS_MODE>",
	} {
		if !strings.Contains(body, fragment) {
			t.Errorf("binary-inform body missing %s", fragment)
		}
	}
	if strings.Contains(body, "MCC_NUM") {
		t.Error("non-European region must not carry carrier codes")
	}
}

func TestBinaryInformBodyCarrierCodes(t *testing.T) {
	eux := binaryInformBody("FW", "SM-G960F", "EUX", "123", "LC")
	if !strings.Contains(eux, "<MCC_NUM><Data>262</Data></MCC_NUM>") {
		t.Error("EUX body missing German MCC")
	}
	euy := binaryInformBody("FW", "SM-G960F", "EUY", "123", "LC")
	if !strings.Contains(euy, "<MCC_NUM><Data>220</Data></MCC_NUM>") {
		t.Error("EUY body missing Serbian MCC")
	}
}

func TestBinaryInitBody(t *testing.T) {
	body := binaryInitBody("fw.zip.enc4", "LC")
	if !strings.Contains(body, "<BINARY_FILE_NAME><Data>fw.zip.enc4</Data></BINARY_FILE_NAME>") {
		t.Error("binary-init body missing filename")
	}
	if !strings.Contains(body, "<LOGIC_CHECK><Data>LC</Data></LOGIC_CHECK>") {
		t.Error("binary-init body missing logic check")
	}
}

func TestLogicCheckInput(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		// Everything from the first dot on is dropped, then the last 16
		// characters are kept.
		{"SM-G960F_1_20190117151610_nswdz3dkdn_fac.zip.enc4", "0_nswdz3dkdn_fac"},
		{"file.zip.enc4", "file"},
		{"noextension", "noextension"},
		{"abcdefghijklmnopqrstu.enc4", "fghijklmnopqrstu"},
		{".enc4", ""},
	}
	for _, tt := range tests {
		if got := LogicCheckInput(tt.filename); got != tt.want {
			t.Errorf("LogicCheckInput(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestMessageStatus(t *testing.T) {
	m, err := ParseMessage([]byte(`<FUSMsg><FUSBody><Results><Status> 200 </Status></Results></FUSBody></FUSMsg>`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	status, err := m.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != 200 {
		t.Errorf("status = %d, want 200", status)
	}

	m, err = ParseMessage([]byte(`<FUSMsg><FUSBody><Results><Status>F01</Status></Results></FUSBody></FUSMsg>`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if _, err := m.Status(); err == nil {
		t.Error("expected error for non-numeric status")
	}
}

func TestParseMessageMalformed(t *testing.T) {
	if _, err := ParseMessage([]byte("<FUSMsg><unclosed")); err == nil {
		t.Error("expected error for malformed XML")
	}
}

func TestLatestFirmwareFallback(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
		ok   bool
	}{
		{
			"primary field wins",
			`<FUSMsg><FUSBody><Put>
				<LATEST_FW_VERSION><Data>A</Data></LATEST_FW_VERSION>
				<ADD_LATEST_FW_VERSION><Data>B</Data></ADD_LATEST_FW_VERSION>
			</Put></FUSBody></FUSMsg>`,
			"A", true,
		},
		{
			"add field when primary absent",
			`<FUSMsg><FUSBody><Put>
				<ADD_LATEST_FW_VERSION><Data>B</Data></ADD_LATEST_FW_VERSION>
			</Put></FUSBody></FUSMsg>`,
			"B", true,
		},
		{
			"results copy as last resort",
			`<FUSMsg><FUSBody><Results>
				<LATEST_FW_VERSION><Data>C</Data></LATEST_FW_VERSION>
			</Results></FUSBody></FUSMsg>`,
			"C", true,
		},
		{
			"absent everywhere",
			`<FUSMsg><FUSBody><Put></Put></FUSBody></FUSMsg>`,
			"", false,
		},
		{
			// A present-but-empty field still counts as present.
			"empty primary field",
			`<FUSMsg><FUSBody><Put>
				<LATEST_FW_VERSION><Data></Data></LATEST_FW_VERSION>
			</Put></FUSBody></FUSMsg>`,
			"", true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMessage([]byte(tt.xml))
			if err != nil {
				t.Fatalf("ParseMessage: %v", err)
			}
			got, ok := m.LatestFirmware()
			if got != tt.want || ok != tt.ok {
				t.Errorf("LatestFirmware = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestChangelogFallback(t *testing.T) {
	m, err := ParseMessage([]byte(`<FUSMsg><FUSBody><Put>
		<ADD_DESCRIPTION><Data>https://doc.example/changelog</Data></ADD_DESCRIPTION>
	</Put></FUSBody></FUSMsg>`))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	got, ok := m.Changelog()
	if !ok || got != "https://doc.example/changelog" {
		t.Errorf("Changelog = (%q, %v)", got, ok)
	}
}
