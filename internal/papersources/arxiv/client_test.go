package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/papersources"
)

const newSubmissionsListing = `<!DOCTYPE html>
<html><body>
<dl id="articles">
  <dt>
    <a name="item1">[1]</a>
    <a href="/abs/2501.10001" title="Abstract">arXiv:2501.10001</a>
  </dt>
  <dd>
    <div class="meta">
      <div class="list-title mathjax">Title: Gradient Surgery for Multi-Task Learning</div>
      <div class="list-authors">
        <a href="/a/doe_j_1">Jane Doe</a>,
        <a href="/a/smith_a_1">Alex Smith</a>
      </div>
      <div class="list-subjects">
        <span class="primary-subject">Machine Learning (cs.LG)</span>; Artificial Intelligence (cs.AI)
      </div>
      <p class="mathjax">We propose a method for resolving gradient conflicts.</p>
    </div>
  </dd>
  <dt>
    <a name="item2">[2]</a>
    <a href="/abs/2501.10002" title="Abstract">arXiv:2501.10002</a>
  </dt>
  <dd>
    <div class="meta">
      <div class="list-title mathjax">Title: Retrieval Augmented Planning</div>
      <div class="list-authors"><a href="/a/curie_m_1">Marie Curie</a></div>
      <p class="mathjax">Planning with retrieval.</p>
    </div>
  </dd>
  <dt>
    <a name="item3">[3]</a>
  </dt>
  <dd><div class="meta"><div class="list-title">Title: Entry Without Identifier</div></div></dd>
</dl>
</body></html>`

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		Enabled:   true,
		BaseURL:   baseURL,
		Category:  "cs.LG",
		RateLimit: 1000,
	})
}

func TestClient_FetchLatest(t *testing.T) {
	t.Run("parses new submissions listing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/list/cs.LG/new", r.URL.Path)
			_, _ = w.Write([]byte(newSubmissionsListing))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.FetchLatest(context.Background(), papersources.FetchParams{})
		require.NoError(t, err)
		require.Len(t, result.Papers, 2)

		first := result.Papers[0]
		assert.Equal(t, "arxiv:2501.10001", first.Identity)
		assert.Equal(t, "2501.10001", first.ExternalID)
		assert.Equal(t, "Gradient Surgery for Multi-Task Learning", first.Title)
		assert.Equal(t, []string{"Jane Doe", "Alex Smith"}, first.Authors)
		assert.Equal(t, "We propose a method for resolving gradient conflicts.", first.Abstract)
		assert.Equal(t, []string{"cs.LG"}, first.Categories)
		assert.Equal(t, domain.SourceTypeArXiv, first.Source)
		assert.Equal(t, server.URL+"/pdf/2501.10001", first.PDFURL)
		assert.Equal(t, domain.PaperStatusDiscovered, first.Status)

		second := result.Papers[1]
		assert.Equal(t, "2501.10002", second.ExternalID)
		assert.Empty(t, second.Categories)
	})

	t.Run("caps results at max", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(newSubmissionsListing))
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.FetchLatest(context.Background(), papersources.FetchParams{MaxResults: 1})
		require.NoError(t, err)
		assert.Len(t, result.Papers, 1)
	})

	t.Run("upstream failure surfaces external api error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.FetchLatest(context.Background(), papersources.FetchParams{})
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	})
}

func TestExtractCategoryCode(t *testing.T) {
	assert.Equal(t, "cs.LG", extractCategoryCode("Machine Learning (cs.LG)"))
	assert.Equal(t, "stat.ML", extractCategoryCode("Machine Learning (stat.ML)"))
	assert.Equal(t, "cs.AI", extractCategoryCode("cs.AI"))
}

func TestClient_Metadata(t *testing.T) {
	client := NewClient(Config{Enabled: true})
	assert.Equal(t, domain.SourceTypeArXiv, client.SourceType())
	assert.Equal(t, "arXiv New Submissions", client.Name())
	assert.True(t, client.IsEnabled())
}
