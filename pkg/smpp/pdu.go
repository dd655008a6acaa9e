package smpp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PDU represents the base Protocol Data Unit
type PDU struct {
	Header PDUHeader
	Body   PDUBody
}

// PDUHeader represents the SMPP PDU header
type PDUHeader struct {
	CommandLength uint32
	CommandID     uint32
	CommandStatus uint32
	SequenceNum   uint32
}

// PDUBody represents the PDU body interface
type PDUBody interface {
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
	CommandID() uint32
}

// OptionalParameter represents an optional parameter (TLV)
type OptionalParameter struct {
	Tag    uint16
	Length uint16
	Value  []byte
}

// Address represents an SMPP address
type Address struct {
	TON  uint8
	NPI  uint8
	Addr string
}

func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%s", a.TON, a.NPI, a.Addr)
}

// bodyReader walks a PDU body, remembering the first error.
type bodyReader struct {
	data []byte
	off  int
	err  error
}

func newBodyReader(data []byte) *bodyReader {
	return &bodyReader{data: data}
}

func (r *bodyReader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *bodyReader) remaining() int {
	return len(r.data) - r.off
}

func (r *bodyReader) uint8(field string) uint8 {
	if r.err != nil {
		return 0
	}
	if r.remaining() < 1 {
		r.fail("%s: unexpected end of body", field)
		return 0
	}
	b := r.data[r.off]
	r.off++
	return b
}

func (r *bodyReader) uint32(field string) uint32 {
	if r.err != nil {
		return 0
	}
	if r.remaining() < 4 {
		r.fail("%s: unexpected end of body", field)
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *bodyReader) cstring(field string) string {
	if r.err != nil {
		return ""
	}
	end := bytes.IndexByte(r.data[r.off:], 0)
	if end < 0 {
		r.fail("%s: missing NULL terminator", field)
		return ""
	}
	s := string(r.data[r.off : r.off+end])
	r.off += end + 1
	return s
}

func (r *bodyReader) bytes(field string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.remaining() < n {
		r.fail("%s: need %d bytes, have %d", field, n, r.remaining())
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[r.off:r.off+n])
	r.off += n
	return out
}

func (r *bodyReader) address(field string) Address {
	return Address{
		TON:  r.uint8(field + "_ton"),
		NPI:  r.uint8(field + "_npi"),
		Addr: r.cstring(field),
	}
}

// options consumes the rest of the body as TLVs.
func (r *bodyReader) options() []OptionalParameter {
	var params []OptionalParameter
	for r.err == nil && r.remaining() > 0 {
		if r.remaining() < 4 {
			r.fail("optional parameter: truncated header")
			return nil
		}
		tag := binary.BigEndian.Uint16(r.data[r.off:])
		length := binary.BigEndian.Uint16(r.data[r.off+2:])
		r.off += 4
		value := r.bytes(fmt.Sprintf("optional parameter 0x%04X", tag), int(length))
		params = append(params, OptionalParameter{Tag: tag, Length: length, Value: value})
	}
	return params
}

// end fails if the body carries bytes nobody consumed.
func (r *bodyReader) end(command string) error {
	if r.err == nil && r.remaining() > 0 {
		r.fail("%s: %d trailing bytes", command, r.remaining())
	}
	return r.err
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

func writeAddress(buf *bytes.Buffer, a Address) {
	buf.WriteByte(a.TON)
	buf.WriteByte(a.NPI)
	writeCString(buf, a.Addr)
}

func writeOptions(buf *bytes.Buffer, params []OptionalParameter) error {
	for _, param := range params {
		if len(param.Value) > 0xFFFF {
			return fmt.Errorf("optional parameter 0x%04X too long: %d bytes", param.Tag, len(param.Value))
		}
		binary.Write(buf, binary.BigEndian, param.Tag)
		binary.Write(buf, binary.BigEndian, uint16(len(param.Value)))
		buf.Write(param.Value)
	}
	return nil
}

// OptionValue returns the value of the first TLV carrying tag.
func OptionValue(params []OptionalParameter, tag uint16) ([]byte, bool) {
	for _, param := range params {
		if param.Tag == tag {
			return param.Value, true
		}
	}
	return nil, false
}

// BindRequest represents bind_transmitter, bind_receiver and bind_transceiver.
type BindRequest struct {
	Command          uint32
	SystemID         string
	Password         string
	SystemType       string
	InterfaceVersion uint8
	AddrTON          uint8
	AddrNPI          uint8
	AddressRange     string
}

func (b *BindRequest) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	writeCString(buf, b.SystemID)
	writeCString(buf, b.Password)
	writeCString(buf, b.SystemType)
	buf.WriteByte(b.InterfaceVersion)
	buf.WriteByte(b.AddrTON)
	buf.WriteByte(b.AddrNPI)
	writeCString(buf, b.AddressRange)
	return buf.Bytes(), nil
}

func (b *BindRequest) Unmarshal(data []byte) error {
	r := newBodyReader(data)
	b.SystemID = r.cstring("system_id")
	b.Password = r.cstring("password")
	b.SystemType = r.cstring("system_type")
	b.InterfaceVersion = r.uint8("interface_version")
	b.AddrTON = r.uint8("addr_ton")
	b.AddrNPI = r.uint8("addr_npi")
	b.AddressRange = r.cstring("address_range")
	return r.end("bind")
}

func (b *BindRequest) CommandID() uint32 {
	return b.Command
}

// BindResponse represents the three bind response PDUs. A rejected bind may
// come back with an empty body, which is kept as-is.
type BindResponse struct {
	Command  uint32
	SystemID string
	Options  []OptionalParameter
	empty    bool
}

func (b *BindResponse) Marshal() ([]byte, error) {
	if b.empty && b.SystemID == "" && len(b.Options) == 0 {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	writeCString(buf, b.SystemID)
	if err := writeOptions(buf, b.Options); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *BindResponse) Unmarshal(data []byte) error {
	if len(data) == 0 {
		b.empty = true
		return nil
	}
	r := newBodyReader(data)
	b.SystemID = r.cstring("system_id")
	b.Options = r.options()
	return r.end("bind_resp")
}

func (b *BindResponse) CommandID() uint32 {
	return b.Command
}

// MessageFields holds the mandatory parameters shared by submit_sm and deliver_sm.
type MessageFields struct {
	ServiceType          string
	Source               Address
	Dest                 Address
	EsmClass             uint8
	ProtocolID           uint8
	PriorityFlag         uint8
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   uint8
	ReplaceIfPresentFlag uint8
	DataCoding           uint8
	SMDefaultMsgID       uint8
	ShortMessage         []byte
	Options              []OptionalParameter
}

func (m *MessageFields) marshal() ([]byte, error) {
	if len(m.ShortMessage) > MaxShortMessageLength {
		return nil, fmt.Errorf("short_message too long: %d bytes", len(m.ShortMessage))
	}
	buf := new(bytes.Buffer)
	writeCString(buf, m.ServiceType)
	writeAddress(buf, m.Source)
	writeAddress(buf, m.Dest)
	buf.WriteByte(m.EsmClass)
	buf.WriteByte(m.ProtocolID)
	buf.WriteByte(m.PriorityFlag)
	writeCString(buf, m.ScheduleDeliveryTime)
	writeCString(buf, m.ValidityPeriod)
	buf.WriteByte(m.RegisteredDelivery)
	buf.WriteByte(m.ReplaceIfPresentFlag)
	buf.WriteByte(m.DataCoding)
	buf.WriteByte(m.SMDefaultMsgID)
	buf.WriteByte(uint8(len(m.ShortMessage)))
	buf.Write(m.ShortMessage)
	if err := writeOptions(buf, m.Options); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *MessageFields) unmarshal(data []byte, command string) error {
	r := newBodyReader(data)
	m.ServiceType = r.cstring("service_type")
	m.Source = r.address("source_addr")
	m.Dest = r.address("destination_addr")
	m.EsmClass = r.uint8("esm_class")
	m.ProtocolID = r.uint8("protocol_id")
	m.PriorityFlag = r.uint8("priority_flag")
	m.ScheduleDeliveryTime = r.cstring("schedule_delivery_time")
	m.ValidityPeriod = r.cstring("validity_period")
	m.RegisteredDelivery = r.uint8("registered_delivery")
	m.ReplaceIfPresentFlag = r.uint8("replace_if_present_flag")
	m.DataCoding = r.uint8("data_coding")
	m.SMDefaultMsgID = r.uint8("sm_default_msg_id")
	smLength := r.uint8("sm_length")
	m.ShortMessage = r.bytes("short_message", int(smLength))
	m.Options = r.options()
	return r.end(command)
}

// Payload returns the message text bytes, preferring message_payload when present.
func (m *MessageFields) Payload() []byte {
	if v, ok := OptionValue(m.Options, TagMessagePayload); ok {
		return v
	}
	return m.ShortMessage
}

// SubmitSM represents submit_sm PDU
type SubmitSM struct {
	MessageFields
}

func (s *SubmitSM) Marshal() ([]byte, error) { return s.marshal() }

func (s *SubmitSM) Unmarshal(data []byte) error { return s.unmarshal(data, "submit_sm") }

func (s *SubmitSM) CommandID() uint32 { return CommandSubmitSM }

// DeliverSM represents deliver_sm PDU
type DeliverSM struct {
	MessageFields
}

func (d *DeliverSM) Marshal() ([]byte, error) { return d.marshal() }

func (d *DeliverSM) Unmarshal(data []byte) error { return d.unmarshal(data, "deliver_sm") }

func (d *DeliverSM) CommandID() uint32 { return CommandDeliverSM }

// IsDeliveryReceipt reports whether the esm_class marks a delivery receipt.
func (d *DeliverSM) IsDeliveryReceipt() bool {
	return d.EsmClass&EsmClassDeliveryReceipt != 0
}

// messageIDResp is the body of submit_sm_resp and deliver_sm_resp.
type messageIDResp struct {
	MessageID string
	empty     bool
}

func (m *messageIDResp) Marshal() ([]byte, error) {
	if m.empty && m.MessageID == "" {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	writeCString(buf, m.MessageID)
	return buf.Bytes(), nil
}

func (m *messageIDResp) Unmarshal(data []byte) error {
	if len(data) == 0 {
		m.empty = true
		return nil
	}
	r := newBodyReader(data)
	m.MessageID = r.cstring("message_id")
	return r.end("message_id response")
}

// SubmitSMResp represents submit_sm_resp PDU
type SubmitSMResp struct {
	messageIDResp
}

func (s *SubmitSMResp) CommandID() uint32 { return CommandSubmitSMResp }

// DeliverSMResp represents deliver_sm_resp PDU
type DeliverSMResp struct {
	messageIDResp
}

func (d *DeliverSMResp) CommandID() uint32 { return CommandDeliverSMResp }

// DestinationAddress is one entry of a submit_multi destination list.
type DestinationAddress struct {
	DestFlag        uint8
	DestAddrTON     uint8  // Only if DestFlag == 1
	DestAddrNPI     uint8  // Only if DestFlag == 1
	DestinationAddr string // Only if DestFlag == 1
	DLName          string // Only if DestFlag == 2
}

// SubmitMulti represents a submit_multi PDU
type SubmitMulti struct {
	ServiceType          string
	Source               Address
	Destinations         []DestinationAddress
	EsmClass             uint8
	ProtocolID           uint8
	PriorityFlag         uint8
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   uint8
	ReplaceIfPresentFlag uint8
	DataCoding           uint8
	SMDefaultMsgID       uint8
	ShortMessage         []byte
	Options              []OptionalParameter
}

// AddDestinationAddress appends an SME address (dest_flag 1).
func (s *SubmitMulti) AddDestinationAddress(addr string, ton, npi uint8) {
	s.Destinations = append(s.Destinations, DestinationAddress{
		DestFlag:        DestFlagSMEAddress,
		DestAddrTON:     ton,
		DestAddrNPI:     npi,
		DestinationAddr: addr,
	})
}

// AddDistributionList appends a distribution list name (dest_flag 2).
func (s *SubmitMulti) AddDistributionList(name string) {
	s.Destinations = append(s.Destinations, DestinationAddress{
		DestFlag: DestFlagDistributionList,
		DLName:   name,
	})
}

func (s *SubmitMulti) Marshal() ([]byte, error) {
	if len(s.Destinations) > 255 {
		return nil, fmt.Errorf("submit_multi: too many destinations: %d", len(s.Destinations))
	}
	if len(s.ShortMessage) > MaxShortMessageLength {
		return nil, fmt.Errorf("short_message too long: %d bytes", len(s.ShortMessage))
	}
	buf := new(bytes.Buffer)
	writeCString(buf, s.ServiceType)
	writeAddress(buf, s.Source)
	buf.WriteByte(uint8(len(s.Destinations)))
	for _, dest := range s.Destinations {
		buf.WriteByte(dest.DestFlag)
		switch dest.DestFlag {
		case DestFlagSMEAddress:
			buf.WriteByte(dest.DestAddrTON)
			buf.WriteByte(dest.DestAddrNPI)
			writeCString(buf, dest.DestinationAddr)
		case DestFlagDistributionList:
			writeCString(buf, dest.DLName)
		default:
			return nil, fmt.Errorf("submit_multi: invalid dest_flag %d", dest.DestFlag)
		}
	}
	buf.WriteByte(s.EsmClass)
	buf.WriteByte(s.ProtocolID)
	buf.WriteByte(s.PriorityFlag)
	writeCString(buf, s.ScheduleDeliveryTime)
	writeCString(buf, s.ValidityPeriod)
	buf.WriteByte(s.RegisteredDelivery)
	buf.WriteByte(s.ReplaceIfPresentFlag)
	buf.WriteByte(s.DataCoding)
	buf.WriteByte(s.SMDefaultMsgID)
	buf.WriteByte(uint8(len(s.ShortMessage)))
	buf.Write(s.ShortMessage)
	if err := writeOptions(buf, s.Options); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *SubmitMulti) Unmarshal(data []byte) error {
	r := newBodyReader(data)
	s.ServiceType = r.cstring("service_type")
	s.Source = r.address("source_addr")
	count := r.uint8("number_of_dests")
	s.Destinations = nil
	for i := 0; i < int(count) && r.err == nil; i++ {
		dest := DestinationAddress{DestFlag: r.uint8("dest_flag")}
		switch dest.DestFlag {
		case DestFlagSMEAddress:
			dest.DestAddrTON = r.uint8("dest_addr_ton")
			dest.DestAddrNPI = r.uint8("dest_addr_npi")
			dest.DestinationAddr = r.cstring("destination_addr")
		case DestFlagDistributionList:
			dest.DLName = r.cstring("dl_name")
		default:
			r.fail("submit_multi: invalid dest_flag %d", dest.DestFlag)
		}
		s.Destinations = append(s.Destinations, dest)
	}
	s.EsmClass = r.uint8("esm_class")
	s.ProtocolID = r.uint8("protocol_id")
	s.PriorityFlag = r.uint8("priority_flag")
	s.ScheduleDeliveryTime = r.cstring("schedule_delivery_time")
	s.ValidityPeriod = r.cstring("validity_period")
	s.RegisteredDelivery = r.uint8("registered_delivery")
	s.ReplaceIfPresentFlag = r.uint8("replace_if_present_flag")
	s.DataCoding = r.uint8("data_coding")
	s.SMDefaultMsgID = r.uint8("sm_default_msg_id")
	smLength := r.uint8("sm_length")
	s.ShortMessage = r.bytes("short_message", int(smLength))
	s.Options = r.options()
	return r.end("submit_multi")
}

func (s *SubmitMulti) CommandID() uint32 { return CommandSubmitMulti }

// UnsuccessfulSME represents an unsuccessful SME in submit_multi_resp
type UnsuccessfulSME struct {
	Dest            Address
	ErrorStatusCode uint32
}

// SubmitMultiResp represents a submit_multi_resp PDU
type SubmitMultiResp struct {
	MessageID    string
	Unsuccessful []UnsuccessfulSME
	empty        bool
}

func (s *SubmitMultiResp) Marshal() ([]byte, error) {
	if s.empty && s.MessageID == "" && len(s.Unsuccessful) == 0 {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	writeCString(buf, s.MessageID)
	buf.WriteByte(uint8(len(s.Unsuccessful)))
	for _, sme := range s.Unsuccessful {
		writeAddress(buf, sme.Dest)
		binary.Write(buf, binary.BigEndian, sme.ErrorStatusCode)
	}
	return buf.Bytes(), nil
}

func (s *SubmitMultiResp) Unmarshal(data []byte) error {
	if len(data) == 0 {
		s.empty = true
		return nil
	}
	r := newBodyReader(data)
	s.MessageID = r.cstring("message_id")
	count := r.uint8("no_unsuccess")
	s.Unsuccessful = nil
	for i := 0; i < int(count) && r.err == nil; i++ {
		s.Unsuccessful = append(s.Unsuccessful, UnsuccessfulSME{
			Dest:            r.address("destination_addr"),
			ErrorStatusCode: r.uint32("error_status_code"),
		})
	}
	return r.end("submit_multi_resp")
}

func (s *SubmitMultiResp) CommandID() uint32 { return CommandSubmitMultiResp }

// DataSM represents a data_sm PDU
type DataSM struct {
	ServiceType        string
	Source             Address
	Dest               Address
	EsmClass           uint8
	RegisteredDelivery uint8
	DataCoding         uint8
	Options            []OptionalParameter
}

func (d *DataSM) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	writeCString(buf, d.ServiceType)
	writeAddress(buf, d.Source)
	writeAddress(buf, d.Dest)
	buf.WriteByte(d.EsmClass)
	buf.WriteByte(d.RegisteredDelivery)
	buf.WriteByte(d.DataCoding)
	if err := writeOptions(buf, d.Options); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *DataSM) Unmarshal(data []byte) error {
	r := newBodyReader(data)
	d.ServiceType = r.cstring("service_type")
	d.Source = r.address("source_addr")
	d.Dest = r.address("destination_addr")
	d.EsmClass = r.uint8("esm_class")
	d.RegisteredDelivery = r.uint8("registered_delivery")
	d.DataCoding = r.uint8("data_coding")
	d.Options = r.options()
	return r.end("data_sm")
}

func (d *DataSM) CommandID() uint32 { return CommandDataSM }

// DataSMResp represents a data_sm_resp PDU
type DataSMResp struct {
	MessageID string
	Options   []OptionalParameter
	empty     bool
}

func (d *DataSMResp) Marshal() ([]byte, error) {
	if d.empty && d.MessageID == "" && len(d.Options) == 0 {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	writeCString(buf, d.MessageID)
	if err := writeOptions(buf, d.Options); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *DataSMResp) Unmarshal(data []byte) error {
	if len(data) == 0 {
		d.empty = true
		return nil
	}
	r := newBodyReader(data)
	d.MessageID = r.cstring("message_id")
	d.Options = r.options()
	return r.end("data_sm_resp")
}

func (d *DataSMResp) CommandID() uint32 { return CommandDataSMResp }

// AlertNotification represents an alert_notification PDU
type AlertNotification struct {
	Source  Address
	ESME    Address
	Options []OptionalParameter
}

func (a *AlertNotification) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	writeAddress(buf, a.Source)
	writeAddress(buf, a.ESME)
	if err := writeOptions(buf, a.Options); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *AlertNotification) Unmarshal(data []byte) error {
	r := newBodyReader(data)
	a.Source = r.address("source_addr")
	a.ESME = r.address("esme_addr")
	a.Options = r.options()
	return r.end("alert_notification")
}

func (a *AlertNotification) CommandID() uint32 { return CommandAlertNotification }

// emptyBody is shared by the PDUs that carry no body at all.
type emptyBody struct{}

func (emptyBody) Marshal() ([]byte, error) { return nil, nil }

func (emptyBody) Unmarshal(data []byte) error {
	if len(data) > 0 {
		return fmt.Errorf("unexpected %d body bytes", len(data))
	}
	return nil
}

// EnquireLink represents enquire_link PDU
type EnquireLink struct{ emptyBody }

func (e *EnquireLink) CommandID() uint32 { return CommandEnquireLink }

// EnquireLinkResp represents enquire_link_resp PDU
type EnquireLinkResp struct{ emptyBody }

func (e *EnquireLinkResp) CommandID() uint32 { return CommandEnquireLinkResp }

// Unbind represents unbind PDU
type Unbind struct{ emptyBody }

func (u *Unbind) CommandID() uint32 { return CommandUnbind }

// UnbindResp represents unbind_resp PDU
type UnbindResp struct{ emptyBody }

func (u *UnbindResp) CommandID() uint32 { return CommandUnbindResp }

// GenericNack represents a generic_nack PDU
type GenericNack struct{ emptyBody }

func (g *GenericNack) CommandID() uint32 { return CommandGenericNack }

// RawBody keeps the bytes of a command this client does not model.
type RawBody struct {
	ID   uint32
	Data []byte
}

func (r *RawBody) Marshal() ([]byte, error) { return r.Data, nil }

func (r *RawBody) Unmarshal(data []byte) error {
	r.Data = append([]byte(nil), data...)
	return nil
}

func (r *RawBody) CommandID() uint32 { return r.ID }
