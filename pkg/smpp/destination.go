package smpp

import "fmt"

// Destination is one submit_multi recipient. Flag 1 is an SME address,
// flag 2 a distribution list; any other flag is skipped when the request is
// built. Nil TON/NPI fall back to the session's dest_addr_ton/dest_addr_npi.
type Destination struct {
	Flag   uint8
	Addr   string
	TON    *uint8
	NPI    *uint8
	DLName string
}

// Addr is a bare SME address using the session default TON/NPI.
func Addr(addr string) Destination {
	return Destination{Flag: DestFlagSMEAddress, Addr: addr}
}

// SMEAddress is an SME address with explicit TON and NPI.
func SMEAddress(addr string, ton, npi uint8) Destination {
	return Destination{Flag: DestFlagSMEAddress, Addr: addr, TON: &ton, NPI: &npi}
}

// DistributionList names a distribution list held by the SMSC.
func DistributionList(name string) Destination {
	return Destination{Flag: DestFlagDistributionList, DLName: name}
}

// DestinationFromParams converts the map form of a destination, e.g.
// {"dest_flag": 1, "destination_addr": "2000", "dest_addr_ton": 5}.
// TON and NPI are only overridden when their keys are present.
func DestinationFromParams(p Params) Destination {
	d := Destination{
		Flag:   p.Uint8(ParamDestFlag),
		Addr:   p.String(ParamDestinationAddr),
		DLName: p.String(ParamDLName),
	}
	if _, ok := p[ParamDestAddrTON]; ok {
		ton := p.Uint8(ParamDestAddrTON)
		d.TON = &ton
	}
	if _, ok := p[ParamDestAddrNPI]; ok {
		npi := p.Uint8(ParamDestAddrNPI)
		d.NPI = &npi
	}
	return d
}

// ParseDestinations converts a mixed list of bare address strings,
// Destination values and map entries.
func ParseDestinations(entries []any) ([]Destination, error) {
	dests := make([]Destination, 0, len(entries))
	for i, entry := range entries {
		switch v := entry.(type) {
		case string:
			dests = append(dests, Addr(v))
		case Destination:
			dests = append(dests, v)
		case Params:
			dests = append(dests, DestinationFromParams(v))
		case map[string]any:
			dests = append(dests, DestinationFromParams(Params(v)))
		default:
			return nil, fmt.Errorf("destination %d: unsupported type %T", i, entry)
		}
	}
	return dests, nil
}
