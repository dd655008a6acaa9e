package smpp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// PDUEncoder handles encoding of PDUs to binary format
type PDUEncoder struct{}

// NewPDUEncoder creates a new PDU encoder
func NewPDUEncoder() *PDUEncoder {
	return &PDUEncoder{}
}

// Encode encodes a PDU to binary format. CommandLength and CommandID are
// derived from the body.
func (e *PDUEncoder) Encode(pdu *PDU) ([]byte, error) {
	if pdu == nil || pdu.Body == nil {
		return nil, fmt.Errorf("failed to encode PDU: missing body")
	}
	bodyData, err := pdu.Body.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s body: %w", CommandName(pdu.Body.CommandID()), err)
	}
	if HeaderLength+len(bodyData) > MaxPDULength {
		return nil, &FrameError{Length: uint32(HeaderLength + len(bodyData)), Reason: "exceeds maximum PDU length"}
	}

	pdu.Header.CommandLength = uint32(HeaderLength + len(bodyData))
	pdu.Header.CommandID = pdu.Body.CommandID()

	buf := bytes.NewBuffer(make([]byte, 0, pdu.Header.CommandLength))
	var header [HeaderLength]byte
	binary.BigEndian.PutUint32(header[0:4], pdu.Header.CommandLength)
	binary.BigEndian.PutUint32(header[4:8], pdu.Header.CommandID)
	binary.BigEndian.PutUint32(header[8:12], pdu.Header.CommandStatus)
	binary.BigEndian.PutUint32(header[12:16], pdu.Header.SequenceNum)
	buf.Write(header[:])
	buf.Write(bodyData)

	return buf.Bytes(), nil
}

// PDUDecoder handles decoding of PDUs from binary format
type PDUDecoder struct{}

// NewPDUDecoder creates a new PDU decoder
func NewPDUDecoder() *PDUDecoder {
	return &PDUDecoder{}
}

// Decode decodes one PDU from data. A buffer shorter than the header or than
// its declared command_length is rejected. Body parse failures are returned
// as *DecodeError.
func (d *PDUDecoder) Decode(data []byte) (*PDU, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("insufficient data for PDU header: got %d bytes, need at least %d", len(data), HeaderLength)
	}

	header := PDUHeader{
		CommandLength: binary.BigEndian.Uint32(data[0:4]),
		CommandID:     binary.BigEndian.Uint32(data[4:8]),
		CommandStatus: binary.BigEndian.Uint32(data[8:12]),
		SequenceNum:   binary.BigEndian.Uint32(data[12:16]),
	}
	if err := checkLength(header.CommandLength); err != nil {
		return nil, err
	}
	if uint32(len(data)) < header.CommandLength {
		return nil, fmt.Errorf("insufficient data: expected %d bytes, got %d", header.CommandLength, len(data))
	}

	body := d.createPDUBody(header.CommandID)
	if err := body.Unmarshal(data[HeaderLength:header.CommandLength]); err != nil {
		return nil, &DecodeError{CommandID: header.CommandID, SequenceNum: header.SequenceNum, Err: err}
	}

	return &PDU{
		Header: header,
		Body:   body,
	}, nil
}

// createPDUBody creates the appropriate PDU body based on command ID
func (d *PDUDecoder) createPDUBody(commandID uint32) PDUBody {
	switch commandID {
	case CommandBindReceiver, CommandBindTransmitter, CommandBindTransceiver:
		return &BindRequest{Command: commandID}
	case CommandBindReceiverResp, CommandBindTransmitterResp, CommandBindTransceiverResp:
		return &BindResponse{Command: commandID}
	case CommandSubmitSM:
		return &SubmitSM{}
	case CommandSubmitSMResp:
		return &SubmitSMResp{}
	case CommandSubmitMulti:
		return &SubmitMulti{}
	case CommandSubmitMultiResp:
		return &SubmitMultiResp{}
	case CommandDeliverSM:
		return &DeliverSM{}
	case CommandDeliverSMResp:
		return &DeliverSMResp{}
	case CommandDataSM:
		return &DataSM{}
	case CommandDataSMResp:
		return &DataSMResp{}
	case CommandAlertNotification:
		return &AlertNotification{}
	case CommandEnquireLink:
		return &EnquireLink{}
	case CommandEnquireLinkResp:
		return &EnquireLinkResp{}
	case CommandUnbind:
		return &Unbind{}
	case CommandUnbindResp:
		return &UnbindResp{}
	case CommandGenericNack:
		return &GenericNack{}
	default:
		return &RawBody{ID: commandID}
	}
}

func checkLength(length uint32) error {
	if length < HeaderLength {
		return &FrameError{Length: length, Reason: "shorter than PDU header"}
	}
	if length > MaxPDULength {
		return &FrameError{Length: length, Reason: "exceeds maximum PDU length"}
	}
	return nil
}

// ReadFrame reads one length-prefixed PDU from r and returns its raw bytes,
// length prefix included. It returns io.EOF when the stream ends before any
// byte of the frame and io.ErrUnexpectedEOF when it ends inside one.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if err := checkLength(length); err != nil {
		return nil, err
	}

	frame := make([]byte, length)
	copy(frame, prefix[:])
	if _, err := io.ReadFull(r, frame[4:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

// BuildResponse builds the response PDU for req, echoing its sequence number.
func BuildResponse(req *PDU, status uint32) *PDU {
	var body PDUBody
	switch req.Header.CommandID {
	case CommandEnquireLink:
		body = &EnquireLinkResp{}
	case CommandUnbind:
		body = &UnbindResp{}
	case CommandDeliverSM:
		body = &DeliverSMResp{}
	case CommandDataSM:
		body = &DataSMResp{}
	default:
		body = &GenericNack{}
	}
	return &PDU{
		Header: PDUHeader{
			CommandStatus: status,
			SequenceNum:   req.Header.SequenceNum,
		},
		Body: body,
	}
}

// BuildGenericNack builds a generic_nack PDU
func BuildGenericNack(sequenceNum uint32, status uint32) *PDU {
	return &PDU{
		Header: PDUHeader{
			CommandStatus: status,
			SequenceNum:   sequenceNum,
		},
		Body: &GenericNack{},
	}
}
