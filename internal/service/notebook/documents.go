package notebook

import (
	"context"
	"encoding/json"
	"fmt"

	"hue-gateway/internal/domain"
)

// Save stores the notebook for owner and returns it with its id set.
func (s *Service) Save(ctx context.Context, owner string, nb *domain.Notebook) (*domain.Notebook, error) {
	if err := nb.Validate(); err != nil {
		return nil, err
	}
	if nb.ID == "" {
		nb.ID = domain.NewID()
	}
	data, err := json.Marshal(nb)
	if err != nil {
		return nil, fmt.Errorf("encode notebook: %w", err)
	}
	doc, err := s.documents.Save(ctx, &domain.NotebookDocument{
		ID:    nb.ID,
		Owner: owner,
		Name:  nb.Name,
		Data:  data,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("notebook saved", "notebook", doc.ID, "owner", owner)
	return nb, nil
}

// Open returns one of owner's saved notebooks.
func (s *Service) Open(ctx context.Context, owner, id string) (*domain.Notebook, error) {
	doc, err := s.documents.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return decodeDocument(doc)
}

// List returns owner's saved notebooks without their snippets.
func (s *Service) List(ctx context.Context, owner string, page domain.PageRequest) ([]domain.Notebook, error) {
	docs, err := s.documents.List(ctx, owner, page)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notebook, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Notebook{ID: doc.ID, Name: doc.Name, Snippets: []domain.Snippet{}, Sessions: []domain.Session{}})
	}
	return out, nil
}

// Copy saves a copy of one of owner's notebooks under a new id. The copy
// does not share the original's statements or sessions.
func (s *Service) Copy(ctx context.Context, owner, id string) (*domain.Notebook, error) {
	nb, err := s.Open(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	nb.ID = ""
	nb.UUID = ""
	nb.Name += "-copy"
	for i := range nb.Snippets {
		nb.Snippets[i].Result = domain.SnippetResult{}
		nb.Snippets[i].Status = ""
	}
	for i := range nb.Sessions {
		nb.Sessions[i].ID = nil
		nb.Sessions[i].State = ""
	}
	copied, err := s.Save(ctx, owner, nb)
	if err != nil {
		return nil, err
	}
	s.logger.Info("notebook copied", "from", id, "to", copied.ID, "owner", owner)
	return copied, nil
}

// Delete removes one of owner's saved notebooks.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	return s.documents.Delete(ctx, owner, id)
}

func decodeDocument(doc *domain.NotebookDocument) (*domain.Notebook, error) {
	var nb domain.Notebook
	if err := json.Unmarshal(doc.Data, &nb); err != nil {
		return nil, fmt.Errorf("decode notebook %s: %w", doc.ID, err)
	}
	nb.ID = doc.ID
	if nb.Name == "" {
		nb.Name = doc.Name
	}
	return &nb, nil
}

// CloseNotebook releases what the notebook holds on its backends: each
// submitted statement and each Spark session. Failures are logged and the
// remaining snippets are still closed.
func (s *Service) CloseNotebook(ctx context.Context, user string, nb *domain.Notebook) []Ack {
	results := make([]Ack, 0, len(nb.Snippets))
	closedSessions := make(map[domain.SnippetType]bool)
	for i := range nb.Snippets {
		snippet := &nb.Snippets[i]
		api := s.Get(user, snippet.Type)
		if _, isSpark := api.(*SparkAPI); isSpark {
			if closedSessions[snippet.Type] {
				continue
			}
			closedSessions[snippet.Type] = true
		} else if len(snippet.Result.Handle) == 0 {
			continue
		}

		ack, err := api.Close(ctx, nb, snippet)
		if err != nil {
			s.logger.Warn("close snippet", "snippet", snippet.ID, "type", snippet.Type, "user", user, "error", err)
			results = append(results, Ack{Status: -1})
			continue
		}
		results = append(results, *ack)
	}
	return results
}
