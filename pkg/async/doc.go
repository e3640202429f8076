// Package async provides panic-safe background execution for ssohub.
//
// SafeGo runs fire-and-forget work such as asynchronous back-channel logout
// delivery. WorkerPool and Batch bound fan-out for the expired-session reaper
// and the event webhook retry worker.
package async
