package smpp

import (
	"fmt"
	"net"
	"strconv"

	"github.com/oarkflow/smpp-esme/pkg/encoding"
)

// Params maps protocol parameter names to values. Session defaults and
// per-call overrides share this type.
type Params map[string]any

// Well-known parameter keys
const (
	ParamHost                 = "host"
	ParamPort                 = "port"
	ParamSystemID             = "system_id"
	ParamPassword             = "password"
	ParamSystemType           = "system_type"
	ParamInterfaceVersion     = "interface_version"
	ParamAddrTON              = "addr_ton"
	ParamAddrNPI              = "addr_npi"
	ParamAddressRange         = "address_range"
	ParamServiceType          = "service_type"
	ParamSourceAddrTON        = "source_addr_ton"
	ParamSourceAddrNPI        = "source_addr_npi"
	ParamSourceAddr           = "source_addr"
	ParamDestAddrTON          = "dest_addr_ton"
	ParamDestAddrNPI          = "dest_addr_npi"
	ParamDestinationAddr      = "destination_addr"
	ParamDestFlag             = "dest_flag"
	ParamDLName               = "dl_name"
	ParamEsmClass             = "esm_class"
	ParamProtocolID           = "protocol_id"
	ParamPriorityFlag         = "priority_flag"
	ParamScheduleDeliveryTime = "schedule_delivery_time"
	ParamValidityPeriod       = "validity_period"
	ParamRegisteredDelivery   = "registered_delivery"
	ParamReplaceIfPresentFlag = "replace_if_present_flag"
	ParamDataCoding           = "data_coding"
	ParamSMDefaultMsgID       = "sm_default_msg_id"
	ParamShortMessage         = "short_message"
	ParamOptions              = "optional_parameters"
)

// DefaultParams returns the defaults every session starts from.
func DefaultParams() Params {
	return Params{
		ParamHost:        "127.0.0.1",
		ParamPort:        2775,
		ParamDestAddrTON: 0,
		ParamDestAddrNPI: 0,
	}
}

// Merge returns a new Params holding p overlaid with override. Keys present
// in override win; neither input is modified.
func (p Params) Merge(override Params) Params {
	out := make(Params, len(p)+len(override))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// String returns the value at key as a string, or "".
func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value at key as an int. ok is false when the key is
// missing or holds something that is not a number.
func (p Params) Int(key string) (int, bool) {
	return toInt(p[key])
}

// Uint8 returns the value at key as a single octet, or 0.
func (p Params) Uint8(key string) uint8 {
	n, _ := toInt(p[key])
	return uint8(n)
}

// Addr returns the host:port dial target.
func (p Params) Addr() string {
	port, ok := p.Int(ParamPort)
	if !ok {
		port = 2775
	}
	host := p.String(ParamHost)
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// BuildBind builds a bind request of the given kind from p.
func BuildBind(command uint32, p Params) *PDU {
	version := uint8(InterfaceVersion)
	if _, ok := p[ParamInterfaceVersion]; ok {
		version = p.Uint8(ParamInterfaceVersion)
	}
	return &PDU{
		Body: &BindRequest{
			Command:          command,
			SystemID:         p.String(ParamSystemID),
			Password:         p.String(ParamPassword),
			SystemType:       p.String(ParamSystemType),
			InterfaceVersion: version,
			AddrTON:          p.Uint8(ParamAddrTON),
			AddrNPI:          p.Uint8(ParamAddrNPI),
			AddressRange:     p.String(ParamAddressRange),
		},
	}
}

var textEncoder = encoding.NewTextEncoder()

// messageBody resolves short_message and data_coding from p. Text is encoded
// with data_coding, or with the narrowest coding that fits when none is set.
// Payloads over MaxShortMessageLength move to the message_payload TLV.
func messageBody(p Params) (shortMessage []byte, dataCoding uint8, options []OptionalParameter, err error) {
	_, hasCoding := p[ParamDataCoding]
	dataCoding = p.Uint8(ParamDataCoding)

	var payload []byte
	switch v := p[ParamShortMessage].(type) {
	case nil:
	case []byte:
		payload = v
	case string:
		if !hasCoding {
			dataCoding = textEncoder.DetectOptimalEncoding(v)
		}
		payload, err = textEncoder.Encode(v, dataCoding)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("failed to encode short_message: %w", err)
		}
	default:
		return nil, 0, nil, fmt.Errorf("short_message: unsupported type %T", v)
	}

	if extra, ok := p[ParamOptions].([]OptionalParameter); ok {
		options = append(options, extra...)
	}

	if len(payload) > MaxShortMessageLength {
		options = append(options, OptionalParameter{
			Tag:    TagMessagePayload,
			Length: uint16(len(payload)),
			Value:  payload,
		})
		return nil, dataCoding, options, nil
	}
	return payload, dataCoding, options, nil
}

// BuildSubmitSM builds a submit_sm from p.
func BuildSubmitSM(p Params) (*PDU, error) {
	shortMessage, dataCoding, options, err := messageBody(p)
	if err != nil {
		return nil, err
	}

	body := &SubmitSM{MessageFields{
		ServiceType: p.String(ParamServiceType),
		Source: Address{
			TON:  p.Uint8(ParamSourceAddrTON),
			NPI:  p.Uint8(ParamSourceAddrNPI),
			Addr: p.String(ParamSourceAddr),
		},
		Dest: Address{
			TON:  p.Uint8(ParamDestAddrTON),
			NPI:  p.Uint8(ParamDestAddrNPI),
			Addr: p.String(ParamDestinationAddr),
		},
		EsmClass:             p.Uint8(ParamEsmClass),
		ProtocolID:           p.Uint8(ParamProtocolID),
		PriorityFlag:         p.Uint8(ParamPriorityFlag),
		ScheduleDeliveryTime: p.String(ParamScheduleDeliveryTime),
		ValidityPeriod:       p.String(ParamValidityPeriod),
		RegisteredDelivery:   p.Uint8(ParamRegisteredDelivery),
		ReplaceIfPresentFlag: p.Uint8(ParamReplaceIfPresentFlag),
		DataCoding:           dataCoding,
		SMDefaultMsgID:       p.Uint8(ParamSMDefaultMsgID),
		ShortMessage:         shortMessage,
		Options:              options,
	}}

	return &PDU{Body: body}, nil
}

// BuildSubmitMulti builds a submit_multi from p addressed to dests, in order.
// Destinations carrying neither flag 1 nor flag 2 are skipped.
func BuildSubmitMulti(dests []Destination, p Params) (*PDU, error) {
	shortMessage, dataCoding, options, err := messageBody(p)
	if err != nil {
		return nil, err
	}

	body := &SubmitMulti{
		ServiceType: p.String(ParamServiceType),
		Source: Address{
			TON:  p.Uint8(ParamSourceAddrTON),
			NPI:  p.Uint8(ParamSourceAddrNPI),
			Addr: p.String(ParamSourceAddr),
		},
		EsmClass:             p.Uint8(ParamEsmClass),
		ProtocolID:           p.Uint8(ParamProtocolID),
		PriorityFlag:         p.Uint8(ParamPriorityFlag),
		ScheduleDeliveryTime: p.String(ParamScheduleDeliveryTime),
		ValidityPeriod:       p.String(ParamValidityPeriod),
		RegisteredDelivery:   p.Uint8(ParamRegisteredDelivery),
		ReplaceIfPresentFlag: p.Uint8(ParamReplaceIfPresentFlag),
		DataCoding:           dataCoding,
		SMDefaultMsgID:       p.Uint8(ParamSMDefaultMsgID),
		ShortMessage:         shortMessage,
		Options:              options,
	}

	defaultTON := p.Uint8(ParamDestAddrTON)
	defaultNPI := p.Uint8(ParamDestAddrNPI)
	for _, dest := range dests {
		switch dest.Flag {
		case DestFlagSMEAddress:
			ton, npi := defaultTON, defaultNPI
			if dest.TON != nil {
				ton = *dest.TON
			}
			if dest.NPI != nil {
				npi = *dest.NPI
			}
			body.AddDestinationAddress(dest.Addr, ton, npi)
		case DestFlagDistributionList:
			body.AddDistributionList(dest.DLName)
		}
	}
	if len(body.Destinations) > 255 {
		return nil, fmt.Errorf("submit_multi: too many destinations: %d", len(body.Destinations))
	}

	return &PDU{Body: body}, nil
}
