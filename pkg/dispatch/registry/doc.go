/*
Package registry provides named lookup of pipeline engines.

A Registry is a validated map from string identifiers to engines. Lookup
distinguishes two failure conditions: an unbound identifier (ErrNotFound)
and an identifier bound to no engine (ErrNilEngine).

	reg := registry.New()
	reg.Register("ingest", engine)

	e, err := reg.Get("ingest")
	if err != nil {
		return err
	}
	e.Signal(ctx, pipeline.NewContext())

A process-wide default registry is available through Default() and the
package-level Get, Register, and Unregister functions.
*/
package registry
