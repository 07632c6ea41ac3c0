// Package factory instantiates pluggable modules, such as planboard stores
// and metrics sinks, from configuration. A module is selected by its type
// name and receives the raw "conf" map of its section, which the factory
// decodes into its own settings struct.
//
//	reg := factory.NewRegistry[planboard.Store]()
//	reg.MustRegister("sqlite", func(conf map[string]any) (planboard.Store, error) {
//	    var c struct{ DSN string `json:"dsn"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return store.Open(ctx, store.SQLite, c.DSN)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"dsn": "file:pb.db"}})
package factory
