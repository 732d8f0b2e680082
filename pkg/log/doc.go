/*
Package log wraps zerolog to give every scheduler component a
structured, component-tagged logger.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	l := log.WithComponent("placement")
	l.Info().Int("jobid", 42).Msg("immediate placement")

Initialize once at process start; WithComponent/WithNode/WithJobID
derive child loggers carrying the usual correlation fields.
*/
package log
