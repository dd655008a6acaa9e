package smpp

import "fmt"

// InterfaceVersion is the SMPP version announced in bind requests.
const InterfaceVersion = 0x34

// Framing limits
const (
	HeaderLength = 16
	// MaxPDULength caps the declared command_length accepted from the wire.
	MaxPDULength = 64 * 1024
	// MaxSequenceNum is the largest sequence number SMPP allows.
	MaxSequenceNum uint32 = 0x7FFFFFFF
)

// Command IDs
const (
	CommandGenericNack       uint32 = 0x80000000
	CommandBindReceiver      uint32 = 0x00000001
	CommandBindTransmitter   uint32 = 0x00000002
	CommandQuerySM           uint32 = 0x00000003
	CommandSubmitSM          uint32 = 0x00000004
	CommandDeliverSM         uint32 = 0x00000005
	CommandUnbind            uint32 = 0x00000006
	CommandReplaceSM         uint32 = 0x00000007
	CommandCancelSM          uint32 = 0x00000008
	CommandBindTransceiver   uint32 = 0x00000009
	CommandOutbind           uint32 = 0x0000000B
	CommandEnquireLink       uint32 = 0x00000015
	CommandSubmitMulti       uint32 = 0x00000021
	CommandAlertNotification uint32 = 0x00000102
	CommandDataSM            uint32 = 0x00000103

	CommandBindReceiverResp    uint32 = 0x80000001
	CommandBindTransmitterResp uint32 = 0x80000002
	CommandQuerySMResp         uint32 = 0x80000003
	CommandSubmitSMResp        uint32 = 0x80000004
	CommandDeliverSMResp       uint32 = 0x80000005
	CommandUnbindResp          uint32 = 0x80000006
	CommandReplaceSMResp       uint32 = 0x80000007
	CommandCancelSMResp        uint32 = 0x80000008
	CommandBindTransceiverResp uint32 = 0x80000009
	CommandEnquireLinkResp     uint32 = 0x80000015
	CommandSubmitMultiResp     uint32 = 0x80000021
	CommandDataSMResp          uint32 = 0x80000103
)

// responseBit is set on every response command id.
const responseBit uint32 = 0x80000000

// IsResponse reports whether the command id denotes a response PDU.
func IsResponse(commandID uint32) bool {
	return commandID&responseBit != 0
}

// ResponseID returns the response command id paired with a request id.
func ResponseID(commandID uint32) uint32 {
	return commandID | responseBit
}

var commandNames = map[uint32]string{
	CommandGenericNack:         "generic_nack",
	CommandBindReceiver:        "bind_receiver",
	CommandBindTransmitter:     "bind_transmitter",
	CommandQuerySM:             "query_sm",
	CommandSubmitSM:            "submit_sm",
	CommandDeliverSM:           "deliver_sm",
	CommandUnbind:              "unbind",
	CommandReplaceSM:           "replace_sm",
	CommandCancelSM:            "cancel_sm",
	CommandBindTransceiver:     "bind_transceiver",
	CommandOutbind:             "outbind",
	CommandEnquireLink:         "enquire_link",
	CommandSubmitMulti:         "submit_multi",
	CommandAlertNotification:   "alert_notification",
	CommandDataSM:              "data_sm",
	CommandBindReceiverResp:    "bind_receiver_resp",
	CommandBindTransmitterResp: "bind_transmitter_resp",
	CommandQuerySMResp:         "query_sm_resp",
	CommandSubmitSMResp:        "submit_sm_resp",
	CommandDeliverSMResp:       "deliver_sm_resp",
	CommandUnbindResp:          "unbind_resp",
	CommandReplaceSMResp:       "replace_sm_resp",
	CommandCancelSMResp:        "cancel_sm_resp",
	CommandBindTransceiverResp: "bind_transceiver_resp",
	CommandEnquireLinkResp:     "enquire_link_resp",
	CommandSubmitMultiResp:     "submit_multi_resp",
	CommandDataSMResp:          "data_sm_resp",
}

// CommandName returns the protocol name of a command id, or its hex form.
func CommandName(commandID uint32) string {
	if name, ok := commandNames[commandID]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", commandID)
}

// Command Status
const (
	StatusOK          uint32 = 0x00000000
	StatusInvMsgLen   uint32 = 0x00000001
	StatusInvCmdLen   uint32 = 0x00000002
	StatusInvCmdID    uint32 = 0x00000003
	StatusInvBnd      uint32 = 0x00000004
	StatusAlreadyBnd  uint32 = 0x00000005
	StatusSysErr      uint32 = 0x00000008
	StatusInvSrcAdr   uint32 = 0x0000000A
	StatusInvDstAdr   uint32 = 0x0000000B
	StatusBindFail    uint32 = 0x0000000D
	StatusInvPaswd    uint32 = 0x0000000E
	StatusInvSysID    uint32 = 0x0000000F
	StatusMsgQFul     uint32 = 0x00000014
	StatusInvNumDests uint32 = 0x00000033
	StatusInvDLName   uint32 = 0x00000034
	StatusInvDestFlag uint32 = 0x00000040
	StatusSubmitFail  uint32 = 0x00000045
	StatusThrottled   uint32 = 0x00000058
	StatusUnknownErr  uint32 = 0x000000FF
)

var statusNames = map[uint32]string{
	StatusOK:          "ESME_ROK",
	StatusInvMsgLen:   "ESME_RINVMSGLEN",
	StatusInvCmdLen:   "ESME_RINVCMDLEN",
	StatusInvCmdID:    "ESME_RINVCMDID",
	StatusInvBnd:      "ESME_RINVBNDSTS",
	StatusAlreadyBnd:  "ESME_RALYBND",
	StatusSysErr:      "ESME_RSYSERR",
	StatusInvSrcAdr:   "ESME_RINVSRCADR",
	StatusInvDstAdr:   "ESME_RINVDSTADR",
	StatusBindFail:    "ESME_RBINDFAIL",
	StatusInvPaswd:    "ESME_RINVPASWD",
	StatusInvSysID:    "ESME_RINVSYSID",
	StatusMsgQFul:     "ESME_RMSGQFUL",
	StatusInvNumDests: "ESME_RINVNUMDESTS",
	StatusInvDLName:   "ESME_RINVDLNAME",
	StatusInvDestFlag: "ESME_RINVDESTFLAG",
	StatusSubmitFail:  "ESME_RSUBMITFAIL",
	StatusThrottled:   "ESME_RTHROTTLED",
	StatusUnknownErr:  "ESME_RUNKNOWNERR",
}

// StatusName returns the ESME_* name of a command status.
func StatusName(status uint32) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", status)
}

// Destination flags used by submit_multi
const (
	DestFlagSMEAddress       uint8 = 0x01
	DestFlagDistributionList uint8 = 0x02
)

// ESM class bits
const (
	EsmClassDefault         = 0x00
	EsmClassDeliveryReceipt = 0x04
	EsmClassUDHI            = 0x40
)

// Data Coding Scheme
const (
	DataCodingDefault  = 0x00
	DataCodingIA5      = 0x01
	DataCodingBinary   = 0x02
	DataCodingISO88591 = 0x03
	DataCodingBinary8  = 0x04
	DataCodingUCS2     = 0x08
)

// TON (Type of Number)
const (
	TONUnknown          = 0x00
	TONInternational    = 0x01
	TONNational         = 0x02
	TONNetworkSpecific  = 0x03
	TONSubscriberNumber = 0x04
	TONAlphanumeric     = 0x05
	TONAbbreviated      = 0x06
)

// NPI (Numbering Plan Indicator)
const (
	NPIUnknown    = 0x00
	NPIISDN       = 0x01
	NPIData       = 0x03
	NPITelex      = 0x04
	NPILandMobile = 0x06
	NPINational   = 0x08
	NPIPrivate    = 0x09
	NPIERMES      = 0x0A
	NPIIP         = 0x0E
	NPIWAP        = 0x12
)

// Optional parameter tags used by this client
const (
	TagReceiptedMessageID = 0x001E
	TagSarMsgRefNum       = 0x020C
	TagSarTotalSegments   = 0x020E
	TagSarSegmentSeqnum   = 0x020F
	TagMessagePayload     = 0x0424
	TagMessageState       = 0x0427
)

// MaxShortMessageLength is the largest short_message carried inline; longer
// payloads go to the message_payload TLV.
const MaxShortMessageLength = 254
