package loader

import (
	"github.com/seantiz/modloader/internal/model"
)

// definitionQueue buffers define calls until the loader knows which request
// they answer.
type definitionQueue struct {
	entries []*model.Definition
}

func (q *definitionQueue) push(def *model.Definition) {
	q.entries = append(q.entries, def)
}

func (q *definitionQueue) drain() []*model.Definition {
	entries := q.entries
	q.entries = nil
	return entries
}

type queued struct {
	m   *model.Module
	def *model.Definition
}

// processQueue matches the entries of q against requested, the module whose
// body produced them (nil for the root queue), and executes them in the mode
// of the outer request.
func (l *Loader) processQueue(q *definitionQueue, requested *model.Module, async bool) {
	entries := q.drain()
	requestedName := ""
	if requested != nil {
		requestedName = requested.Name
	}

	var (
		jobs       []queued
		consumed   = requested == nil
		adopted    bool
		policyErr  error
		skipJobFor *model.Module
	)
	for i, def := range entries {
		name := def.Name
		switch {
		case name != "":
			if name == requestedName && !consumed {
				consumed = true
			}
		case !consumed:
			name = requestedName
			consumed, adopted = true, true
		case !adopted && requested != nil:
			// The request was consumed by a named definition.
			err := &DefinitionError{Module: requestedName, Err: ErrDuplicateDefinition}
			if l.opts.StrictDefine {
				policyErr = err
			} else {
				droppedDefinitionsTotal.WithLabelValues("duplicate").Inc()
				l.logger.Error("ignoring nameless definition", "module", requestedName,
					"position", i, "definitions", len(entries), "error", err)
			}
			continue
		case l.opts.StrictDefine:
			err := &DefinitionError{Module: requestedName, Err: ErrAnonymousDefinition}
			if requested == nil {
				droppedDefinitionsTotal.WithLabelValues("anonymous").Inc()
				l.logger.Error("ignoring anonymous definition", "position", i, "error", err)
				continue
			}
			policyErr = err
			continue
		default:
			name = model.NewAnonymousName(requestedName)
			l.logger.Warn("anonymous definition without a name to adopt, using a synthesized name",
				"module", requestedName, "name", name)
		}
		def.Name = name
		jobs = append(jobs, queued{m: l.reg.Create(name), def: def})
	}

	if policyErr != nil {
		// The requested module fails instead of running its own definition.
		skipJobFor = requested
		if !requested.Settled() {
			l.failWith(requested, tmplDefine, policyErr)
		}
	}

	if requested != nil && !consumed && len(jobs) > 0 {
		// The body defined its module under a different name.
		first := jobs[0].m
		l.logger.Debug("aliasing requested module", "module", requestedName, "defined_as", first.Name)
		first.AddAlias(requested)
		consumed = true
	}

	for _, job := range jobs {
		if job.m == skipJobFor {
			continue
		}
		l.executeDefinition(job.m, job.def, async)
	}

	if requested != nil && !consumed && !requested.Settled() {
		l.ready(requested, nil, false)
	}
}
