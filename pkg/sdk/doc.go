/*
Package sdk provides the Better Analytics client library for reporting errors
and logs from Go applications.

# Quick Start

Install the SDK in your app:

	go get github.com/Thegreatsura/better-analytics-sub000

Create a client and report errors:

	package main

	import (
	    "context"
	    "net/http"

	    "github.com/Thegreatsura/better-analytics-sub000/pkg/sdk"
	    "github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/httpx"
	)

	func main() {
	    client := sdk.New(sdk.Config{
	        APIURL:      "http://localhost:8080/v1",
	        ClientID:    "my-client-id",
	        ServiceName: "my-app",
	        AutoCapture: true,
	    })
	    defer client.Close(context.Background())

	    mux := http.NewServeMux()
	    mux.HandleFunc("/", homeHandler)
	    handler := httpx.Middleware(client)(mux)

	    http.ListenAndServe(":8000", handler)
	}

New never fails. Without a ClientID the client is disabled for its whole
lifetime: every method returns a Result with Success false and the message
"SDK is disabled", and no request is ever made.

# Reporting Errors

ReportError sends a record built from your fields layered on top of the
enriched environment. Fields you set always win over enriched values:

	res := client.ReportError(ctx, sdk.ErrorData{
	    ErrorRecord: record.ErrorRecord{
	        Message:   "payment declined",
	        ErrorType: record.ErrorTypeBusiness,
	        Severity:  record.SeverityMedium,
	    },
	    Custom: map[string]any{"order_id": 42},
	}, nil)

Custom is serialized to JSON exactly once into custom_data. A string is sent
as is.

CaptureException derives the error name, message and stack trace from an
error and defaults severity to high:

	client.CaptureException(ctx, err, sdk.ErrorData{}, nil)

Errors that format a stack with %+v (github.com/pkg/errors and friends)
report that stack. Other errors report the stack of the calling goroutine.

CaptureHTTPError adds request details. The request may be an *http.Request
or a decoded map, the response an int, an *http.Response, anything with a
StatusCode() method, or a map:

	client.CaptureHTTPError(ctx, err,
	    map[string]any{"method": "POST", "url": "/checkout"},
	    map[string]any{"statusCode": 503},
	    sdk.ErrorData{})

A 5xx status reports severity high, anything else medium.

# Reporting Logs

	client.ReportLog(ctx, "cache warmed", sdk.LogData{
	    Level:   record.LevelInfo,
	    Context: map[string]any{"keys": 1200},
	})

# Auto-Capture

With AutoCapture set, a server client reports panics and goroutine errors:

	func handle() {
	    defer client.Recover() // reports, then re-panics
	    ...
	}

	client.Go(func() error {
	    return syncInventory() // a returned error is reported
	})

A browser client (Runtime: sdk.RuntimeBrowser) attaches to the "error" and
"unhandledrejection" events of Config.Events instead. A hook that cannot be
installed is skipped; the client keeps working without it.

With AutoLog set, Console() returns a console that also reports every call
at or above LogLevel, and WrapCore does the same for a zap logger:

	logger := zap.New(core, zap.WrapCore(client.WrapCore))

Forwarding never recurses: a log emitted while a record is being forwarded
goes to the original output only. Auto-captured logs are sent on a bounded
set of goroutines; when all are busy the record is dropped.

# Delivery

Each report is one POST to {APIURL}/ingest or {APIURL}/log with an optional
bearer token. Network errors and non-2xx replies are retried MaxRetries times
(default 3) with delays of RetryDelay, 2*RetryDelay, 4*RetryDelay and so on.
Every attempt is bounded by Timeout. Nothing is queued: a record that still
fails after the last retry is reported back as a failed Result and dropped.

# Client Configuration

	client := sdk.New(sdk.Config{
	    APIURL:         "https://api.example.com/v1", // default http://localhost:8080/v1
	    ClientID:       "my-client-id",               // required, else disabled
	    AccessToken:    "secret",                     // optional bearer token
	    Environment:    "staging",                    // default "production"
	    LogLevel:       record.LevelWarn,             // AutoLog threshold, default info
	    MaxRetries:     5,                            // negative disables retries
	    RetryDelay:     500 * time.Millisecond,
	    Timeout:        5 * time.Second,              // per attempt
	    ServiceName:    "api",
	    ServiceVersion: "1.4.2",
	    Debug:          true,                         // SDK diagnostics on stderr
	})

# See Also

  - pkg/sdk/httpx for HTTP middleware
  - pkg/sdk/capture for the hooks behind AutoCapture and AutoLog
  - pkg/sdk/transport for the retry logic
*/
package sdk
