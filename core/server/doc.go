// Package server runs the push server's HTTP listeners with graceful
// shutdown.
//
// The public and publisher endpoints each get their own Server. Start binds
// the listener before serving, so a port conflict surfaces as an error from
// Start instead of a silent background failure. Run adapts a Server to
// errgroup:
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(public.Run(ctx, publicRouter))
//	g.Go(publisher.Run(ctx, publisherRouter))
//	err := g.Wait()
//
// The default write timeout is longer than the long-poll timeout; lowering it
// below 40 seconds cuts idle polls short.
//
// TLS is enabled with WithTLS or through Config.TLSCertFile and
// Config.TLSKeyFile.
package server
