package connectors

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hyperjump/querylinker/internal/config"
	"github.com/hyperjump/querylinker/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ServiceNow searches the incident table by short description and description.
type ServiceNow struct {
	client *jsonClient
}

func NewServiceNow(cfg config.ServiceNowConfig, limit rate.Limit, logger *zap.Logger) *ServiceNow {
	return &ServiceNow{
		client: newJSONClient(SystemServiceNow, cfg.InstanceURL, limit, func(r *http.Request) {
			r.SetBasicAuth(cfg.Username, cfg.Password)
		}, logger),
	}
}

func (s *ServiceNow) System() string { return SystemServiceNow }

type serviceNowResponse struct {
	Result []struct {
		SysID            string `json:"sys_id"`
		Number           string `json:"number"`
		ShortDescription string `json:"short_description"`
		Description      string `json:"description"`
	} `json:"result"`
}

func (s *ServiceNow) Search(ctx context.Context, query string, limit int) ([]*models.SearchResult, error) {
	params := url.Values{}
	params.Set("sysparm_query", "short_descriptionLIKE"+query+"^ORdescriptionLIKE"+query)
	params.Set("sysparm_limit", strconv.Itoa(limit))
	params.Set("sysparm_fields", "sys_id,number,short_description,description")

	var resp serviceNowResponse
	if err := s.client.get(ctx, "/api/now/table/incident", params, &resp); err != nil {
		return nil, err
	}

	results := make([]*models.SearchResult, 0, len(resp.Result))
	for _, inc := range resp.Result {
		desc := inc.Description
		if desc == "" {
			desc = inc.ShortDescription
		}
		results = append(results, &models.SearchResult{
			System:  SystemServiceNow,
			Title:   inc.Number + ": " + inc.ShortDescription,
			ID:      inc.Number,
			Snippet: snippet(desc),
			Link:    s.client.baseURL + "/nav_to.do?uri=incident.do?sys_id=" + inc.SysID,
		})
	}
	return limitResults(results, limit), nil
}
