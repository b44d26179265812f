package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/sakubank/backend/internal/config"
	"github.com/sakubank/backend/internal/models"
)

// SettlementService hands merchant payments off to the interbank settlement
// rail. Debits stay on our ledger; the pacs.008 message the clearing side
// consumes is pushed onto a queue after the local commit.
type SettlementService struct {
	redis *redis.Client
	cfg   *config.QRISConfig
}

func NewSettlementService(redisClient *redis.Client, cfg *config.QRISConfig) *SettlementService {
	return &SettlementService{redis: redisClient, cfg: cfg}
}

// QueueMerchantPayment builds a pacs.008 credit transfer for a committed
// merchant debit and enqueues its XML for the settlement consumer.
func (s *SettlementService) QueueMerchantPayment(ctx context.Context, debit *models.Mutation, merchantName string) error {
	doc, err := s.buildPacs008(debit, merchantName)
	if err != nil {
		return err
	}

	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML: %w", err)
	}
	message := xml.Header + string(xmlData)

	if err := s.redis.RPush(ctx, s.cfg.SettlementQueue, message).Err(); err != nil {
		return fmt.Errorf("failed to enqueue settlement message: %w", err)
	}

	log.Printf("[SETTLEMENT] Queued pacs.008 for transaction %s", debit.TrxID)
	return nil
}

// buildPacs008 creates a pacs.008 FIToFICustomerCreditTransfer message
func (s *SettlementService) buildPacs008(debit *models.Mutation, merchantName string) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()
	amount := float64(debit.Amount)

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode("IDR"),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG", // Clearing
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(debit.TrxID)}[0],
					EndToEndId: common.Max35Text(debit.TrxID),
					TxId:       &[]common.Max35Text{common.Max35Text(debit.TrxID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode("IDR"),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.cfg.InstitutionBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(s.cfg.InstitutionName)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text("QRIS"),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(merchantName)}[0],
				},
			},
		},
	}

	return doc, nil
}
