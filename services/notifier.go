package services

import (
	"fmt"
	"log"

	"clinic-queue/config"

	pubnub "github.com/pubnub/go"
)

// AlertNotifier is the push-notification boundary. Delivery itself is
// an external concern; the queue server only hands off the event.
type AlertNotifier interface {
	EmergencyAdmitted(doctorID, patientIDHash string)
}

// PubNubNotifier publishes emergency admissions to a per-doctor channel
// so staff devices without an open socket still get paged.
type PubNubNotifier struct {
	pubnub *pubnub.PubNub
}

func NewPubNubNotifier(cfg *config.Config) AlertNotifier {
	if cfg.PubNubPublishKey == "" || cfg.PubNubSubscribeKey == "" {
		log.Println("PubNub keys not configured, emergency push notifications disabled")
		return NoopNotifier{}
	}

	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	return &PubNubNotifier{pubnub: pubnub.NewPubNub(pnConfig)}
}

func (n *PubNubNotifier) EmergencyAdmitted(doctorID, patientIDHash string) {
	channel := fmt.Sprintf("doctor-%s", doctorID)
	n.pubnub.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":            "emergency_alert",
			"doctor_id":       doctorID,
			"patient_id_hash": patientIDHash,
		}).
		Execute()
}

// NoopNotifier drops alerts when no push backend is configured.
type NoopNotifier struct{}

func (NoopNotifier) EmergencyAdmitted(doctorID, patientIDHash string) {}
