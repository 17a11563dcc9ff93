// Package tracking turns provider callbacks into delivery status updates.
//
// Updates arrive three ways: JSON callbacks posted to /callbacks/{channel},
// open-pixel and click-redirect hits on signed links, and an SQS queue that
// carries both our own updates and SES event notifications. When a queue is
// configured the HTTP handlers only publish; the Consumer applies.
package tracking
