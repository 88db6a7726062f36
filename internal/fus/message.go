package fus

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// clientVersion is the Smart Switch client version reported in every
// authenticated request body.
const clientVersion = "4.3.23123_1"

// envelope is the fixed FUSMsg request shape: a header carrying the
// protocol version and a body of named leaf fields, each wrapped as
// <NAME><Data>value</Data></NAME>.
type envelope struct {
	XMLName xml.Name     `xml:"FUSMsg"`
	Hdr     envelopeHdr  `xml:"FUSHdr"`
	Body    envelopeBody `xml:"FUSBody"`
}

type envelopeHdr struct {
	ProtoVer string `xml:"ProtoVer"`
}

type envelopeBody struct {
	Put putFields `xml:"Put"`
}

type putField struct {
	Name  string
	Value string
}

type putFields []putField

// MarshalXML writes each field in declaration order as a named element
// wrapping a single Data leaf.
func (p putFields) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, f := range p {
		el := xml.StartElement{Name: xml.Name{Local: f.Name}}
		if err := e.EncodeToken(el); err != nil {
			return err
		}
		if err := e.EncodeElement(f.Value, xml.StartElement{Name: xml.Name{Local: "Data"}}); err != nil {
			return err
		}
		if err := e.EncodeToken(el.End()); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func marshalEnvelope(fields putFields) string {
	data, err := xml.Marshal(envelope{
		Hdr:  envelopeHdr{ProtoVer: "1.0"},
		Body: envelopeBody{Put: fields},
	})
	if err != nil {
		// putFields marshalling cannot fail on string data.
		panic(fmt.Sprintf("fus: envelope marshal: %v", err))
	}
	return string(data)
}

// binaryInformBody builds the NF_DownloadBinaryInform request body.
func binaryInformBody(firmware, model, region, imei, logicCheck string) string {
	fields := putFields{
		{"ACCESS_MODE", "2"},
		{"BINARY_NATURE", "1"},
		{"CLIENT_PRODUCT", "Smart Switch"},
		{"DEVICE_FW_VERSION", firmware},
		{"DEVICE_LOCAL_CODE", region},
		{"DEVICE_MODEL_NAME", model},
		{"UPGRADE_VARIABLE", "0"},
		{"OBEX_SUPPORT", "0"},
		{"DEVICE_IMEI_PUSH", imei},
		{"DEVICE_PLATFORM", "Android"},
		{"CLIENT_VERSION", clientVersion},
		{"LOGIC_CHECK", logicCheck},
	}
	// Some European regions additionally require carrier codes.
	switch region {
	case "EUX":
		fields = append(fields,
			putField{"DEVICE_AID_CODE", region},
			putField{"DEVICE_CC_CODE", "DE"},
			putField{"MCC_NUM", "262"},
			putField{"MNC_NUM", "01"},
		)
	case "EUY":
		fields = append(fields,
			putField{"DEVICE_AID_CODE", region},
			putField{"DEVICE_CC_CODE", "RS"},
			putField{"MCC_NUM", "220"},
			putField{"MNC_NUM", "01"},
		)
	}
	return marshalEnvelope(fields)
}

// binaryInitBody builds the NF_DownloadBinaryInitForMass request body that
// registers a file for download.
func binaryInitBody(filename, logicCheck string) string {
	return marshalEnvelope(putFields{
		{"BINARY_FILE_NAME", filename},
		{"LOGIC_CHECK", logicCheck},
	})
}

// LogicCheckInput returns the fragment of a binary filename that the
// server expects the init logic check to be computed over: the last 16
// characters of the name up to its first dot. The compound extensions on
// delivered binaries (.zip.enc2/.zip.enc4) are dropped entirely.
func LogicCheckInput(filename string) string {
	base := filename
	if i := strings.IndexByte(filename, '.'); i >= 0 {
		base = filename[:i]
	}
	if len(base) <= 16 {
		return base
	}
	return base[len(base)-16:]
}

// leaf is a response field wrapped in a Data element. Absent fields stay
// nil on the enclosing struct, so presence is distinguishable from an
// empty value.
type leaf struct {
	Data string `xml:"Data"`
}

func (l *leaf) value() (string, bool) {
	if l == nil {
		return "", false
	}
	return l.Data, true
}

// Message is a parsed FUS response. Unlike the loosely-typed dictionary
// access the protocol invites, every field the client reads is declared
// here, and fields with documented fallbacks are only reachable through
// the ordered accessors below.
type Message struct {
	XMLName xml.Name `xml:"FUSMsg"`
	Hdr     struct {
		SessionID string `xml:"SessionID"`
	} `xml:"FUSHdr"`
	Body struct {
		Results struct {
			Status          string `xml:"Status"`
			LatestFWVersion *leaf  `xml:"LATEST_FW_VERSION"`
		} `xml:"Results"`
		Put struct {
			BinaryName        *leaf `xml:"BINARY_NAME"`
			BinaryByteSize    *leaf `xml:"BINARY_BYTE_SIZE"`
			BinaryCRC         *leaf `xml:"BINARY_CRC"`
			ModelPath         *leaf `xml:"MODEL_PATH"`
			LastModified      *leaf `xml:"LAST_MODIFIED"`
			DisplayName       *leaf `xml:"DEVICE_MODEL_DISPLAYNAME"`
			CurrentOSVersion  *leaf `xml:"CURRENT_OS_VERSION"`
			DevicePlatform    *leaf `xml:"DEVICE_PLATFORM"`
			Description       *leaf `xml:"DESCRIPTION"`
			AddDescription    *leaf `xml:"ADD_DESCRIPTION"`
			LatestFWVersion   *leaf `xml:"LATEST_FW_VERSION"`
			AddLatestFW       *leaf `xml:"ADD_LATEST_FW_VERSION"`
			LogicValueFactory *leaf `xml:"LOGIC_VALUE_FACTORY"`
		} `xml:"Put"`
	} `xml:"FUSBody"`
}

// ParseMessage decodes a FUS response body.
func ParseMessage(body []byte) (*Message, error) {
	var m Message
	if err := xml.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("malformed FUS response: %w", err)
	}
	return &m, nil
}

// Status returns the protocol-level status code from Results.Status,
// which is independent of the HTTP status of the carrying response.
func (m *Message) Status() (int, error) {
	code, err := strconv.Atoi(strings.TrimSpace(m.Body.Results.Status))
	if err != nil {
		return 0, fmt.Errorf("FUS response carries no numeric status: %q", m.Body.Results.Status)
	}
	return code, nil
}

// LatestFirmware resolves the latest-firmware field with its documented
// fallback order: LATEST_FW_VERSION, then ADD_LATEST_FW_VERSION, then the
// copy inside Results.
func (m *Message) LatestFirmware() (string, bool) {
	if v, ok := m.Body.Put.LatestFWVersion.value(); ok {
		return v, true
	}
	if v, ok := m.Body.Put.AddLatestFW.value(); ok {
		return v, true
	}
	return m.Body.Results.LatestFWVersion.value()
}

// Changelog resolves the firmware changelog URL: DESCRIPTION, then
// ADD_DESCRIPTION.
func (m *Message) Changelog() (string, bool) {
	if v, ok := m.Body.Put.Description.value(); ok {
		return v, true
	}
	return m.Body.Put.AddDescription.value()
}
