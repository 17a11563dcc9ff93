// Package channel hands rendered notifications to delivery transports.
//
// Every transport sits behind the Adapter interface. The Dispatcher picks
// the adapter for a channel, resolves the recipient address from the event
// context, bounds the call with its own timeout and converts the outcome
// into a DeliveryHandle. Hand-off is all it waits for: delivery, opens and
// clicks arrive later as callbacks.
//
// Adapters:
//   - SESAdapter and ResendAdapter (EMAIL)
//   - PushAdapter, an Expo-style HTTP push gateway (PUSH)
//   - SMSAdapter, a Twilio-style messages endpoint (SMS)
//   - InAppAdapter, a Redis list per recipient plus a pub/sub fan-out (IN_APP)
package channel
