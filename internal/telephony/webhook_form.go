package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// TwilioStatusForm captures the subset of status-callback fields we care
// about. Twilio sends application/x-www-form-urlencoded by default.
//
// Keep it minimal and provider-adapter-only. Outcome mapping is not done
// here; it belongs to the reconciler.
type TwilioStatusForm struct {
	CallSid        string
	CallStatus     string
	CallDuration   string
	To             string
	From           string
	AccountSid     string
	ApiVersion     string
	Timestamp      string
	SequenceNumber string
}

func ParseStatusCallback(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	f := TwilioStatusForm{
		CallSid:        strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus:     strings.TrimSpace(r.PostFormValue("CallStatus")),
		CallDuration:   strings.TrimSpace(r.PostFormValue("CallDuration")),
		To:             strings.TrimSpace(r.PostFormValue("To")),
		From:           strings.TrimSpace(r.PostFormValue("From")),
		AccountSid:     strings.TrimSpace(r.PostFormValue("AccountSid")),
		ApiVersion:     strings.TrimSpace(r.PostFormValue("ApiVersion")),
		Timestamp:      strings.TrimSpace(r.PostFormValue("Timestamp")),
		SequenceNumber: strings.TrimSpace(r.PostFormValue("SequenceNumber")),
	}
	return f, nil
}

// ToDeliveryEvent converts the form into the provider-agnostic event shape.
// A missing or malformed duration is treated as zero.
func (f TwilioStatusForm) ToDeliveryEvent() DeliveryEvent {
	duration := 0
	if f.CallDuration != "" {
		if n, err := strconv.Atoi(f.CallDuration); err == nil && n >= 0 {
			duration = n
		}
	}

	raw := map[string]string{
		"CallSid":    f.CallSid,
		"CallStatus": f.CallStatus,
		"To":         f.To,
		"From":       f.From,
	}
	if f.CallDuration != "" {
		raw["CallDuration"] = f.CallDuration
	}
	if f.AccountSid != "" {
		raw["AccountSid"] = f.AccountSid
	}
	if f.Timestamp != "" {
		raw["Timestamp"] = f.Timestamp
	}
	if f.SequenceNumber != "" {
		raw["SequenceNumber"] = f.SequenceNumber
	}

	return DeliveryEvent{
		Status:   f.CallStatus,
		Duration: duration,
		Raw:      raw,
	}
}
