// Package mqtt publishes authd session events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Event publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//
// Topics live under a configurable prefix (default "authd"):
//
//	authd/session/{event}   session lifecycle events (not retained)
//	authd/system/status     online/offline status (retained)
//
// Payloads never contain token strings or password material.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishEvent(client.Topics().SessionEvent("login"), payload)
package mqtt
