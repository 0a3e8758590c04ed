// Package dlite contains the data model and the pipeline machinery shared by
// the oteapi-dlite strategies.
//
// A pipeline is a list of strategy steps which all work on one Session. The
// session holds a collection of data model instances together with the
// relations between them (RDF-like subject, predicate, object triples), and
// the steps fill it in stages:
//
// 1. Parse
//
//	Parse strategies (mpr, json, influx) download or query raw data, create
//	an Instance of a data model (Metadata) from it, and add the instance to
//	the session's Collection under a label.
//
// 2. Mapping
//
//	The mapping strategy adds relations to the collection saying which data
//	model properties map to the same ontological concept, e.g.
//	("http://onto-ns.com/meta/0.1/Forces#forces", "mapsTo", "emmo:Force").
//
// 3. Generate
//
//	The generate strategy picks an instance (or the whole collection),
//	resolves the properties of a target data model through the mappings
//	with Reconcile, and optionally writes the instance out through a storage
//	Driver.
//
// Steps are looked up by the parserType, mediaType, functionType or
// mappingType of their StrategyConfig. Strategy packages register themselves
// when imported, so a binary imports the ones it wants, the way database/sql
// drivers are imported.
package dlite
