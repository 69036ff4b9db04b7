// Package amqptel provides distributed trace propagation and
// per-destination metrics for services connected by AMQP queues, HTTP
// calls, and gRPC.
//
// The root package assembles the stack from one configuration tree:
// structured logging, OTLP trace export with retry and circuit
// breaking, an instrument registry keyed by destination, a context
// propagation codec, and an optional Prometheus endpoint exposing the
// instrumentation's own health.
//
// # Lifecycle
//
//	cfg, err := config.LoadConfig("telemetry.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tel, err := amqptel.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := tel.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Stop(context.Background())
//
// # Publishing
//
// Wrap an AMQP channel so every publish starts a producer span, carries
// the trace context in the message headers, and counts toward the
// destination's metrics:
//
//	publisher := tel.Messaging().WrapPublisher(ch)
//	err := publisher.PublishWithContext(ctx, "", "orders", false, false,
//	    amqp091.Publishing{Body: body})
//
// # Consuming
//
// Wrap a handler so each delivery resumes the producer's trace, records
// consume metrics, and times the processing inside a nested span:
//
//	handle := tel.Messaging().WrapConsumer("orders", func(ctx context.Context, d amqp091.Delivery) error {
//	    return process(ctx, d.Body)
//	})
//
//	for d := range deliveries {
//	    if err := handle(context.Background(), d); err != nil {
//	        d.Nack(false, false)
//	        continue
//	    }
//	    d.Ack(false)
//	}
//
// # Retry topology
//
// Declare the delay queue pair that cycles failed messages back to the
// work queue after a pause:
//
//	policy := tel.RetryPolicy("orders")
//	if err := policy.Declare(ch); err != nil {
//	    log.Fatal(err)
//	}
//
// # HTTP and gRPC
//
// The same codec and registry instrument synchronous hops:
//
//	mux := http.NewServeMux()
//	handler := httptel.Middleware(tel.HTTPConfig())(mux)
//
//	client := &http.Client{Transport: httptel.NewTransport(nil, tel.HTTPConfig())}
package amqptel
